package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "ClassGen API",
        "description": "Class generation and optimization engine for term planning",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "ClassGeneration", "description": "Readiness, proposal generation, refinement and approval"}
    ],
    "paths": {
        "/terms/{id}/generation/readiness": {
            "get": {
                "tags": ["ClassGeneration"],
                "summary": "Check class generation readiness for a term",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Term not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/terms/{id}/generation/proposals": {
            "post": {
                "tags": ["ClassGeneration"],
                "summary": "Generate a new class proposal",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "async", "in": "query", "type": "boolean"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/GenerateRequest"}}
                ],
                "responses": {
                    "201": {"description": "Proposal created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "202": {"description": "Generation queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Concurrent generation", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Term not ready", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "get": {
                "tags": ["ClassGeneration"],
                "summary": "List proposals for a term",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "order", "in": "query", "type": "string", "enum": ["run", "score"]},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/generation/jobs/{id}": {
            "get": {
                "tags": ["ClassGeneration"],
                "summary": "Inspect an async generation job",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown job", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/generation/proposals/{id}": {
            "get": {
                "tags": ["ClassGeneration"],
                "summary": "Get a proposal with its full snapshot",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Proposal not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/generation/proposals/{id}/export": {
            "get": {
                "tags": ["ClassGeneration"],
                "summary": "Download a proposal roster as CSV or PDF",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "Roster document"},
                    "404": {"description": "Proposal not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/generation/proposals/{id}/refine": {
            "post": {
                "tags": ["ClassGeneration"],
                "summary": "Apply manual edits to a proposal",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RefineRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Proposal already approved", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/generation/proposals/{id}/approve": {
            "post": {
                "tags": ["ClassGeneration"],
                "summary": "Approve a proposal for its term",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Unresolved blockers", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/terms/{id}/generation/log": {
            "get": {
                "tags": ["ClassGeneration"],
                "summary": "List the generation audit log for a term",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "action", "in": "query", "type": "string"},
                    {"name": "performed_by", "in": "query", "type": "string"},
                    {"name": "proposal_id", "in": "query", "type": "string"},
                    {"name": "from", "in": "query", "type": "string", "format": "date-time"},
                    {"name": "to", "in": "query", "type": "string", "format": "date-time"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "GenerateRequest": {
            "type": "object",
            "properties": {
                "parameters": {"$ref": "#/definitions/GenerationParameters"}
            }
        },
        "GenerationParameters": {
            "type": "object",
            "properties": {
                "priorityStrategy": {"type": "string", "enum": ["BALANCE", "MINIMIZE_CONFLICTS", "MAXIMIZE_UTILIZATION"]},
                "defaultMinClassSize": {"type": "integer"},
                "defaultMaxClassSize": {"type": "integer"},
                "newStudentRatio": {"type": "number"},
                "maxClassesPerTeacher": {"type": "integer"},
                "allowUndersizedClasses": {"type": "boolean"},
                "optimizeForTeacherWorkload": {"type": "boolean"},
                "levelSizeOverrides": {"type": "object"}
            }
        },
        "RefineRequest": {
            "type": "object",
            "properties": {
                "edits": {"type": "array", "items": {"type": "object"}}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
