package respond

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"trust-fund-service/apperr"
)

// Message unified response structure
type Message struct {
	Code           int         `json:"code"`
	Message        string      `json:"message"`
	Reason         string      `json:"reason,omitempty"`
	ProcessingTime int64       `json:"processingTime"`
	Data           interface{} `json:"data"`
}

// Response response structure (for Swagger)
// @Description Unified API response structure
type Response struct {
	Code           int         `json:"code" example:"0" description:"Response code: 0=success, 20200=mirror pending, 4xx00=client error, 5xx00=server error"`
	Message        string      `json:"message" example:"success" description:"Response message"`
	Reason         string      `json:"reason" example:"ValidationError" description:"Error category, empty on success"`
	ProcessingTime int64       `json:"processingTime" example:"12" description:"Request processing time (milliseconds)"`
	Data           interface{} `json:"data" description:"Response data"`
}

// Response code constants
const (
	CodeSuccess         = 0     // Success
	CodeMirrorPending   = 20200 // Accepted on chain, mirror not updated yet
	CodeInvalidParam    = 40000 // Parameter error
	CodeUnauthenticated = 40100
	CodeForbidden       = 40300
	CodeNotFound        = 40400 // Resource not found
	CodeInvalidState    = 40900
	CodeDuplicateVote   = 40901
	CodeUpstreamFailure = 50200
	CodeServerError     = 50000 // Server error
)

// Message constants
const (
	MsgSuccess       = "success"
	MsgMirrorPending = "succeeded on chain, recording"
	ReasonPending    = "MirrorPending"
)

type mapping struct {
	status int
	code   int
}

var categoryMapping = map[apperr.Category]mapping{
	apperr.CategoryUnauthenticated: {http.StatusUnauthorized, CodeUnauthenticated},
	apperr.CategoryForbidden:       {http.StatusForbidden, CodeForbidden},
	apperr.CategoryNotFound:        {http.StatusNotFound, CodeNotFound},
	apperr.CategoryValidation:      {http.StatusBadRequest, CodeInvalidParam},
	apperr.CategoryInvalidState:    {http.StatusConflict, CodeInvalidState},
	apperr.CategoryDuplicateVote:   {http.StatusConflict, CodeDuplicateVote},
	apperr.CategoryUpstreamFailure: {http.StatusBadGateway, CodeUpstreamFailure},
	apperr.CategoryInternal:        {http.StatusInternalServerError, CodeServerError},
}

// Success return success response
func Success(c *gin.Context, data interface{}) {
	SuccessWithMsg(c, MsgSuccess, data)
}

// SuccessWithMsg return success response (custom message)
func SuccessWithMsg(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Message{
		Code:           CodeSuccess,
		Message:        message,
		ProcessingTime: getProcessingTime(c),
		Data:           data,
	})
}

// Pending return 202 for a write the chain accepted but the mirror has not
// recorded yet
func Pending(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, Message{
		Code:           CodeMirrorPending,
		Message:        MsgMirrorPending,
		Reason:         ReasonPending,
		ProcessingTime: getProcessingTime(c),
		Data:           data,
	})
}

// Error return error response for err; internal causes are logged, never sent
func Error(c *gin.Context, err error) {
	ErrorWithData(c, err, nil)
}

// ErrorWithData return error response (with data)
func ErrorWithData(c *gin.Context, err error, data interface{}) {
	cat := apperr.CategoryOf(err)
	m, ok := categoryMapping[cat]
	if !ok {
		m = categoryMapping[apperr.CategoryInternal]
	}
	if cat == apperr.CategoryInternal {
		log.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(m.status, Message{
		Code:           m.code,
		Message:        apperr.PublicMessage(err),
		Reason:         string(cat),
		ProcessingTime: getProcessingTime(c),
		Data:           data,
	})
}

// InvalidParam return parameter error response
func InvalidParam(c *gin.Context, message string) {
	Error(c, apperr.New(apperr.CodeValidation, message))
}

// getProcessingTime calculate request processing time (milliseconds)
func getProcessingTime(c *gin.Context) int64 {
	if startTime, exists := c.Get("start_time"); exists {
		if t, ok := startTime.(time.Time); ok {
			return time.Since(t).Milliseconds()
		}
	}
	return 0
}

// TimingMiddleware timing middleware
func TimingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("start_time", time.Now())
		c.Next()
	}
}
