package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SMA Exam API",
        "description": "Exam lifecycle and result aggregation service",
        "version": "0.1.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Auth", "description": "Authentication"},
        {"name": "Exams", "description": "Exam lifecycle management"},
        {"name": "Results", "description": "Result ingestion and projections"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "Dependencies unavailable"}
                }
            }
        },
        "/api/v1/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate and issue an access token",
                "responses": {
                    "200": {"description": "Token issued"},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/api/v1/exams": {
            "get": {
                "tags": ["Exams"],
                "summary": "List exams",
                "responses": {"200": {"description": "Exams"}}
            },
            "post": {
                "tags": ["Exams"],
                "summary": "Create a draft exam",
                "responses": {
                    "201": {"description": "Created"},
                    "400": {"description": "Validation failed"}
                }
            }
        },
        "/api/v1/exams/{id}": {
            "get": {
                "tags": ["Exams"],
                "summary": "Fetch one exam",
                "responses": {
                    "200": {"description": "Exam"},
                    "404": {"description": "Not found"}
                }
            },
            "patch": {
                "tags": ["Exams"],
                "summary": "Edit exam schedule or metadata",
                "responses": {"200": {"description": "Updated"}}
            },
            "delete": {
                "tags": ["Exams"],
                "summary": "Soft-delete an exam",
                "responses": {"204": {"description": "Deleted"}}
            }
        },
        "/api/v1/exams/{id}/publish": {
            "post": {
                "tags": ["Exams"],
                "summary": "Publish the question paper",
                "responses": {
                    "200": {"description": "Published"},
                    "409": {"description": "Not in draft status"}
                }
            }
        },
        "/api/v1/exams/{id}/cancel": {
            "post": {
                "tags": ["Exams"],
                "summary": "Cancel an exam",
                "responses": {"200": {"description": "Cancelled"}}
            }
        },
        "/api/v1/exams/{id}/postpone": {
            "post": {
                "tags": ["Exams"],
                "summary": "Postpone an exam",
                "responses": {"200": {"description": "Postponed"}}
            }
        },
        "/api/v1/exams/{id}/results": {
            "post": {
                "tags": ["Results"],
                "summary": "Ingest one student result",
                "responses": {
                    "200": {"description": "Aggregates updated"},
                    "409": {"description": "Concurrent update conflict"}
                }
            }
        },
        "/api/v1/exams/{id}/results/publish": {
            "post": {
                "tags": ["Results"],
                "summary": "Publish exam results",
                "responses": {"200": {"description": "Results published"}}
            }
        },
        "/api/v1/exams/{id}/statistics": {
            "get": {
                "tags": ["Results"],
                "summary": "Exam statistics projection",
                "responses": {"200": {"description": "Statistics"}}
            }
        },
        "/api/v1/students/{studentId}/results": {
            "get": {
                "tags": ["Results"],
                "summary": "Recent results for one student",
                "responses": {"200": {"description": "Results"}}
            }
        }
    },
    "definitions": {
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
                "pagination": {"type": "object"},
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
