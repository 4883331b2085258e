// Package db 封装管理面的 MongoDB 访问
package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var ( // 使用包变量来持有数据库连接
	MongoClient *mongo.Client
	AdminDB     *mongo.Database
)

// InitMongoDB 初始化 MongoDB 连接并建唯一索引
func InitMongoDB(connectionString, dbName string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(connectionString))
	if err != nil {
		return fmt.Errorf("连接 MongoDB 失败: %w", err)
	}
	if err = client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping MongoDB 失败: %w", err)
	}

	MongoClient = client
	AdminDB = client.Database(dbName)

	// name 唯一索引，重名由数据库兜底
	nameIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	for _, coll := range []string{"rulesets", "schemas"} {
		if _, err := AdminDB.Collection(coll).Indexes().CreateOne(ctx, nameIndex); err != nil {
			return fmt.Errorf("创建 %s 索引失败: %w", coll, err)
		}
	}
	return nil
}

// CloseMongoDB 关闭 MongoDB 连接
func CloseMongoDB() error {
	if MongoClient == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return MongoClient.Disconnect(ctx)
}

// GetRuleSetCollection 报警规则集集合
func GetRuleSetCollection() *mongo.Collection {
	return AdminDB.Collection("rulesets")
}

// GetSchemaCollection 行结构集合
func GetSchemaCollection() *mongo.Collection {
	return AdminDB.Collection("schemas")
}
