package di

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/savaki/judgement-ingest/internal/dao/judgementdao"
	"github.com/savaki/judgement-ingest/internal/services"
)

func ProvideJudgementDAO(client *dynamodb.Client, config *services.Config) *judgementdao.DAO {
	return judgementdao.New(client, config.TableName)
}
