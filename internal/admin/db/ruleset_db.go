package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"vandaq/internal/admin/model"
)

const dbTimeout = 10 * time.Second

// GetAllRuleSets 返回全部规则集
func GetAllRuleSets() ([]model.RuleSet, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	cursor, err := GetRuleSetCollection().Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("查询规则集失败: %w", err)
	}
	var sets []model.RuleSet
	if err := cursor.All(ctx, &sets); err != nil {
		return nil, fmt.Errorf("解码规则集失败: %w", err)
	}
	return sets, nil
}

// GetRuleSetByName 按名取一个规则集
func GetRuleSetByName(name string) (*model.RuleSet, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	var set model.RuleSet
	if err := GetRuleSetCollection().FindOne(ctx, bson.M{"name": name}).Decode(&set); err != nil {
		return nil, err
	}
	return &set, nil
}

// CreateRuleSet 新建规则集
func CreateRuleSet(set *model.RuleSet) (*model.RuleSet, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	now := primitive.NewDateTimeFromTime(time.Now())
	set.ID = primitive.NewObjectID()
	set.CreatedAt = now
	set.UpdatedAt = now
	if _, err := GetRuleSetCollection().InsertOne(ctx, set); err != nil {
		return nil, err
	}
	return set, nil
}

// UpdateRuleSet 按名整体替换规则集内容
func UpdateRuleSet(name string, set *model.RuleSet) (*model.RuleSet, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	update := bson.M{"$set": bson.M{
		"description": set.Description,
		"rules":       set.Rules,
		"updatedAt":   primitive.NewDateTimeFromTime(time.Now()),
	}}
	var updated model.RuleSet
	err := GetRuleSetCollection().FindOneAndUpdate(ctx, bson.M{"name": name}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteRuleSet 按名删除规则集
func DeleteRuleSet(name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	res, err := GetRuleSetCollection().DeleteOne(ctx, bson.M{"name": name})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("规则集 %q 不存在", name)
	}
	return nil
}
