// Package docs 由 swag 风格维护的 OpenAPI 描述，供 /swagger 使用
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "paths": {
        "/api/v1/feed": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["时间线"],
                "summary": "时间线",
                "parameters": [
                    {"type": "integer", "default": 0, "name": "page", "in": "query"},
                    {"type": "integer", "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}
            }
        },
        "/api/v1/posts": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["帖子"],
                "summary": "发帖",
                "parameters": [{"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/createPostRequest"}}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}
            }
        },
        "/api/v1/posts/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["帖子"],
                "summary": "查询帖子",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["帖子"],
                "summary": "删帖",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "403": {"description": "Forbidden"}, "404": {"description": "Not Found"}}
            }
        },
        "/api/v1/posts/{id}/like": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["互动"],
                "summary": "点赞帖子",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["互动"],
                "summary": "取消点赞",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/posts/{id}/comments": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["互动"],
                "summary": "评论帖子",
                "parameters": [
                    {"type": "integer", "name": "id", "in": "path", "required": true},
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/commentRequest"}}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/comments/{id}": {
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["互动"],
                "summary": "删除评论",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "403": {"description": "Forbidden"}}
            }
        },
        "/api/v1/comments/{id}/like": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["互动"],
                "summary": "点赞评论",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/relations/follow": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["关系链"],
                "summary": "关注用户",
                "parameters": [{"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/followRequest"}}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}}
            }
        },
        "/api/v1/relations/unfollow": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["关系链"],
                "summary": "取消关注",
                "parameters": [{"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/followRequest"}}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/relations/{user_id}/following": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["关系链"],
                "summary": "查询关注列表",
                "parameters": [
                    {"type": "integer", "name": "user_id", "in": "path", "required": true},
                    {"type": "integer", "default": 1, "name": "page", "in": "query"},
                    {"type": "integer", "default": 10, "name": "page_size", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/relations/{user_id}/fans": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["关系链"],
                "summary": "查询粉丝列表（来自冗余表）",
                "parameters": [
                    {"type": "integer", "name": "user_id", "in": "path", "required": true},
                    {"type": "integer", "default": 1, "name": "page", "in": "query"},
                    {"type": "integer", "default": 10, "name": "page_size", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/notifications": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["通知"],
                "summary": "通知列表",
                "parameters": [
                    {"type": "integer", "default": 0, "name": "page", "in": "query"},
                    {"type": "integer", "default": 20, "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/notifications/unread-count": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["通知"],
                "summary": "未读通知数",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/notifications/read-all": {
            "put": {
                "security": [{"BearerAuth": []}],
                "tags": ["通知"],
                "summary": "全部标记已读",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/notifications/{id}/read": {
            "put": {
                "security": [{"BearerAuth": []}],
                "tags": ["通知"],
                "summary": "标记已读",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "403": {"description": "Forbidden"}}
            }
        },
        "/api/v1/notifications/{id}": {
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["通知"],
                "summary": "删除通知",
                "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "403": {"description": "Forbidden"}}
            }
        }
    },
    "definitions": {
        "followRequest": {
            "type": "object",
            "required": ["to_user_id"],
            "properties": {"to_user_id": {"type": "integer"}}
        },
        "createPostRequest": {
            "type": "object",
            "properties": {"caption": {"type": "string"}, "image_url": {"type": "string"}}
        },
        "commentRequest": {
            "type": "object",
            "required": ["content"],
            "properties": {"content": {"type": "string"}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Social Feed API",
	Description:      "时间线、关系链与实时通知",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
