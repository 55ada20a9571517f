package di

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/savaki/data-pipeline/internal/dao/lockdao"
	"github.com/savaki/data-pipeline/internal/dao/rundao"
	"github.com/savaki/data-pipeline/internal/dao/taskdao"
)

func ProvideRunDAO(env string, client *dynamodb.Client) *rundao.DAO {
	return rundao.New(client, rundao.TableName(env))
}

func ProvideTaskDAO(env string, client *dynamodb.Client) *taskdao.DAO {
	return taskdao.New(client, taskdao.TableName(env))
}

func ProvideLockDAO(env string, client *dynamodb.Client) *lockdao.DAO {
	return lockdao.New(client, lockdao.TableName(env))
}
