// Package docs registra la especificación OpenAPI servida en /swagger.
// Se mantiene a mano junto con las anotaciones de los handlers; docs_test.go
// verifica que cada ruta registrada tenga su entrada.
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
    "paths": {
        "/registry": {"get": {"tags": ["registry"], "summary": "Información del registro", "produces": ["application/json"], "responses": {"200": {"description": "OK"}, "404": {"description": "registro sin inicializar"}}}},
        "/roles/{principal}": {
            "get": {"tags": ["roles"], "summary": "Rol de un principal", "parameters": [{"type": "string", "name": "principal", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}},
            "put": {"tags": ["roles"], "summary": "Asignar rol", "parameters": [{"type": "string", "name": "principal", "in": "path", "required": true}, {"type": "string", "name": "X-Debug-Principal", "in": "header"}], "responses": {"200": {"description": "OK"}, "400": {"description": "invalid_input"}, "401": {"description": "unauthorized"}, "403": {"description": "unauthorized"}, "422": {"description": "invariant_violation"}}},
            "delete": {"tags": ["roles"], "summary": "Revocar rol", "parameters": [{"type": "string", "name": "principal", "in": "path", "required": true}, {"type": "string", "name": "X-Debug-Principal", "in": "header"}], "responses": {"204": {"description": "No Content"}, "403": {"description": "unauthorized"}, "422": {"description": "invariant_violation"}}}
        },
        "/animals": {"post": {"tags": ["animals"], "summary": "Registrar animal", "consumes": ["application/json"], "produces": ["application/json"], "responses": {"201": {"description": "Created"}, "400": {"description": "invalid_input"}, "403": {"description": "unauthorized"}, "409": {"description": "already_exists"}}}},
        "/animals/{animalID}": {"get": {"tags": ["animals"], "summary": "Ver animal", "parameters": [{"type": "string", "name": "animalID", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "not_found"}}}},
        "/animals/{animalID}/close": {"post": {"tags": ["animals"], "summary": "Cerrar animal", "parameters": [{"type": "string", "name": "animalID", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "403": {"description": "unauthorized"}, "404": {"description": "not_found"}, "409": {"description": "invalid_state"}}}},
        "/animals/{animalID}/records": {
            "get": {"tags": ["animals"], "summary": "IDs de registros de un animal", "parameters": [{"type": "string", "name": "animalID", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "not_found"}}},
            "post": {"tags": ["records"], "summary": "Crear registro", "parameters": [{"type": "string", "name": "animalID", "in": "path", "required": true}], "responses": {"201": {"description": "Created"}, "400": {"description": "invalid_input"}, "403": {"description": "unauthorized"}, "404": {"description": "not_found"}, "409": {"description": "invalid_state"}}}
        },
        "/records/total": {"get": {"tags": ["records"], "summary": "Total de registros emitidos", "responses": {"200": {"description": "OK"}}}},
        "/records/{recordID}": {"get": {"tags": ["records"], "summary": "Ver registro", "parameters": [{"type": "integer", "name": "recordID", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "not_found"}}}},
        "/records/{recordID}/verify": {"post": {"tags": ["workflow"], "summary": "Verificar registro", "parameters": [{"type": "integer", "name": "recordID", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "403": {"description": "unauthorized"}, "404": {"description": "not_found"}, "409": {"description": "invalid_state"}}}},
        "/records/{recordID}/revoke": {"post": {"tags": ["workflow"], "summary": "Revocar registro", "parameters": [{"type": "integer", "name": "recordID", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "403": {"description": "unauthorized"}, "404": {"description": "not_found"}, "409": {"description": "invalid_state"}}}},
        "/records/{recordID}/state": {"post": {"tags": ["workflow"], "summary": "Actualizar estado de un registro verificado", "parameters": [{"type": "integer", "name": "recordID", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "400": {"description": "invalid_input"}, "403": {"description": "unauthorized"}, "404": {"description": "not_found"}, "409": {"description": "invalid_state"}}}},
        "/records/{recordID}/hash": {"get": {"tags": ["hash"], "summary": "Comparar hash contra el compromiso del registro", "parameters": [{"type": "integer", "name": "recordID", "in": "path", "required": true}, {"type": "string", "name": "value", "in": "query", "required": true}], "responses": {"200": {"description": "OK"}, "400": {"description": "invalid_input"}, "404": {"description": "not_found"}}}},
        "/records/{recordID}/metadata": {"get": {"tags": ["hash"], "summary": "Metadata archivada de un registro", "parameters": [{"type": "integer", "name": "recordID", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "not_found"}}}},
        "/commitments": {"post": {"tags": ["hash"], "summary": "Calcular compromiso keccak256", "responses": {"200": {"description": "OK"}}}},
        "/notifications": {"get": {"tags": ["notifications"], "summary": "Log de notificaciones", "parameters": [{"type": "integer", "name": "after", "in": "query"}, {"type": "integer", "name": "limit", "in": "query"}], "responses": {"200": {"description": "OK"}, "400": {"description": "invalid_input"}}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "certivax API",
	Description:      "Registro de certificación de trazabilidad ganadera: roles, animales, registros y workflow de verificación.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
