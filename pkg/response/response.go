// Package response defines the JSON envelope every handler replies with.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body wraps every API reply. Error is set only on failures.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Body{Success: true, Data: data})
}

func fail(c *gin.Context, status int, err string) {
	c.JSON(status, Body{Success: false, Error: err})
}

// OK replies 200 with data.
func OK(c *gin.Context, data interface{}) { ok(c, http.StatusOK, data) }

// Created replies 201 with data.
func Created(c *gin.Context, data interface{}) { ok(c, http.StatusCreated, data) }

// NoContent replies 204 with an empty body.
func NoContent(c *gin.Context) { c.Status(http.StatusNoContent) }

// BadRequest replies 400.
func BadRequest(c *gin.Context, err string) { fail(c, http.StatusBadRequest, err) }

// Unauthorized replies 401.
func Unauthorized(c *gin.Context, err string) { fail(c, http.StatusUnauthorized, err) }

// Forbidden replies 403.
func Forbidden(c *gin.Context, err string) { fail(c, http.StatusForbidden, err) }

// NotFound replies 404.
func NotFound(c *gin.Context, err string) { fail(c, http.StatusNotFound, err) }

// Conflict replies 409.
func Conflict(c *gin.Context, err string) { fail(c, http.StatusConflict, err) }

// TooManyRequests replies 429.
func TooManyRequests(c *gin.Context, err string) { fail(c, http.StatusTooManyRequests, err) }

// Internal replies 500.
func Internal(c *gin.Context, err string) { fail(c, http.StatusInternalServerError, err) }
