// Package docs регистрирует описание API для swagger UI.
// Описание собирается swag init по аннотациям обработчиков internal/api/handlers.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "paths": {
        "/catalog/preview": {
            "post": {
                "tags": ["catalog"],
                "summary": "Превью товаров для каналов",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}
            }
        },
        "/catalog/commit": {
            "post": {
                "tags": ["catalog"],
                "summary": "Коммит листингов на маркетплейсы",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [{"type": "string", "name": "Idempotency-Key", "in": "header"}],
                "responses": {
                    "200": {"description": "OK"},
                    "207": {"description": "Multi-Status"},
                    "400": {"description": "Bad Request"},
                    "409": {"description": "Conflict"}
                }
            }
        },
        "/sync/pull": {
            "post": {
                "tags": ["sync"],
                "summary": "Загрузка данных с маркетплейсов",
                "parameters": [{"type": "string", "name": "Idempotency-Key", "in": "header"}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}
            }
        },
        "/sync/push": {
            "post": {
                "tags": ["sync"],
                "summary": "Выгрузка данных на маркетплейсы",
                "parameters": [{"type": "string", "name": "Idempotency-Key", "in": "header"}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}
            }
        },
        "/sync/jobs": {
            "get": {
                "tags": ["sync"],
                "summary": "Список задач синхронизации",
                "parameters": [
                    {"type": "integer", "name": "page", "in": "query"},
                    {"type": "integer", "name": "page_size", "in": "query"},
                    {"type": "string", "name": "status", "in": "query"},
                    {"type": "string", "name": "job_type", "in": "query"},
                    {"type": "string", "name": "account_id", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/sync/jobs/{id}": {
            "get": {
                "tags": ["sync"],
                "summary": "Задача синхронизации",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/accounts": {
            "get": {
                "tags": ["accounts"],
                "summary": "Аккаунты арендатора",
                "parameters": [{"type": "string", "name": "channel", "in": "query"}],
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "tags": ["accounts"],
                "summary": "Подключение аккаунта канала",
                "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}}
            }
        },
        "/accounts/{id}/tokens": {
            "put": {
                "tags": ["accounts"],
                "summary": "Обновление токенов аккаунта",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/accounts/{id}/status": {
            "patch": {
                "tags": ["accounts"],
                "summary": "Смена статуса аккаунта",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        }
    }
}`

// SwaggerInfo метаданные описания API
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Channel Sync API",
	Description:      "Превью, коммит каталога и синхронизация с маркетплейсами",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
