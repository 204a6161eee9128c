package thumbnail

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Response messages.
const (
	MessageSuccess = "Image resized successfully"
	MessageFailure = "Error processing image"
)

// Event is the invocation input record.
type Event struct {
	SourceBucket      string `json:"sourceBucket"`
	ImageKey          string `json:"imageKey"`
	DestinationBucket string `json:"destinationBucket"`
}

// Request converts the record into a ResizeRequest.
func (e Event) Request() ResizeRequest {
	return ResizeRequest{
		SourceBucket:      e.SourceBucket,
		ImageKey:          e.ImageKey,
		DestinationBucket: e.DestinationBucket,
	}
}

// Response is the invocation output record. Body holds a JSON-encoded
// SuccessBody or ErrorBody.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
	Success    bool   `json:"success"`
}

// SuccessBody is the body of a successful Response.
type SuccessBody struct {
	Message        string `json:"message"`
	OriginalImage  string `json:"originalImage"`
	ThumbnailImage string `json:"thumbnailImage"`
	OriginalSize   string `json:"originalSize"`
	ThumbnailSize  string `json:"thumbnailSize"`
}

// ErrorBody is the body of a failed Response.
type ErrorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// SuccessBody decodes the body of a successful response.
func (r Response) SuccessBody() (SuccessBody, error) {
	var b SuccessBody
	if !r.Success {
		return b, fmt.Errorf("response is a failure (status %d)", r.StatusCode)
	}
	if err := json.Unmarshal([]byte(r.Body), &b); err != nil {
		return b, fmt.Errorf("decode success body: %w", err)
	}
	return b, nil
}

// ErrorBody decodes the body of a failed response.
func (r Response) ErrorBody() (ErrorBody, error) {
	var b ErrorBody
	if r.Success {
		return b, fmt.Errorf("response is a success")
	}
	if err := json.Unmarshal([]byte(r.Body), &b); err != nil {
		return b, fmt.Errorf("decode error body: %w", err)
	}
	return b, nil
}

// NewResponse renders a ResizeResult as an invocation output record.
func NewResponse(result ResizeResult) Response {
	if !result.Success {
		return errorResponse(result.Err)
	}
	return encodeResponse(http.StatusOK, true, SuccessBody{
		Message:        MessageSuccess,
		OriginalImage:  result.OriginalKey,
		ThumbnailImage: result.ThumbnailKey,
		OriginalSize:   result.OriginalSize.String(),
		ThumbnailSize:  result.ThumbnailSize.String(),
	})
}

func errorResponse(err error) Response {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return encodeResponse(http.StatusInternalServerError, false, ErrorBody{
		Message: MessageFailure,
		Error:   msg,
	})
}

func encodeResponse(status int, success bool, body any) Response {
	// Both body types are flat string structs, which always marshal.
	data, _ := json.Marshal(body)
	return Response{StatusCode: status, Body: string(data), Success: success}
}

// Handle runs one invocation end to end and renders its outcome.
func (g *Generator) Handle(ctx context.Context, event Event) (Response, ResizeResult) {
	result := g.Process(ctx, event.Request())
	return NewResponse(result), result
}
