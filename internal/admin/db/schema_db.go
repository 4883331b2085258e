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

// GetAllSchemas 返回全部行结构
func GetAllSchemas() ([]model.StreamSchema, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	cursor, err := GetSchemaCollection().Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("查询行结构失败: %w", err)
	}
	var schemas []model.StreamSchema
	if err := cursor.All(ctx, &schemas); err != nil {
		return nil, fmt.Errorf("解码行结构失败: %w", err)
	}
	return schemas, nil
}

// GetSchemaByName 按名取一个行结构
func GetSchemaByName(name string) (*model.StreamSchema, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	var schema model.StreamSchema
	if err := GetSchemaCollection().FindOne(ctx, bson.M{"name": name}).Decode(&schema); err != nil {
		return nil, err
	}
	return &schema, nil
}

// CreateSchema 新建行结构
func CreateSchema(schema *model.StreamSchema) (*model.StreamSchema, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	now := primitive.NewDateTimeFromTime(time.Now())
	schema.ID = primitive.NewObjectID()
	schema.CreatedAt = now
	schema.UpdatedAt = now
	if _, err := GetSchemaCollection().InsertOne(ctx, schema); err != nil {
		return nil, err
	}
	return schema, nil
}

// UpdateSchema 按名整体替换行结构内容
func UpdateSchema(name string, schema *model.StreamSchema) (*model.StreamSchema, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	update := bson.M{"$set": bson.M{
		"description":    schema.Description,
		"items":          schema.Items,
		"formats":        schema.Formats,
		"units":          schema.Units,
		"acqTypes":       schema.AcqTypes,
		"item_delimiter": schema.Delimiter,
		"updatedAt":      primitive.NewDateTimeFromTime(time.Now()),
	}}
	var updated model.StreamSchema
	err := GetSchemaCollection().FindOneAndUpdate(ctx, bson.M{"name": name}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteSchema 按名删除行结构
func DeleteSchema(name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	res, err := GetSchemaCollection().DeleteOne(ctx, bson.M{"name": name})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("行结构 %q 不存在", name)
	}
	return nil
}
