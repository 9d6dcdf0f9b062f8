package core

import (
	"errors"
	"testing"
	"time"
)

func validDocument() *Document {
	return &Document{
		Id:           1,
		Filename:     "3f1c.txt",
		OriginalName: "remote-work.txt",
		MIMEType:     "text/plain",
		Size:         128,
		Status:       StatusProcessing,
		UploadedAt:   time.Now().Add(-time.Minute),
	}
}

func TestValidateDocument(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(d *Document)
		nilDoc  bool
		wantErr error
	}{
		{
			name:   "valid processing document",
			mutate: func(d *Document) {},
		},
		{
			name: "valid ready document",
			mutate: func(d *Document) {
				d.Status = StatusReady
				d.ChunkCount = 3
			},
		},
		{
			name: "valid error document",
			mutate: func(d *Document) {
				d.Status = StatusError
				d.ErrorMessage = "boom"
			},
		},
		{
			name:    "nil document",
			nilDoc:  true,
			wantErr: ErrValidation,
		},
		{
			name:    "empty filename",
			mutate:  func(d *Document) { d.Filename = "" },
			wantErr: ErrEmptyFilename,
		},
		{
			name:    "empty mime type",
			mutate:  func(d *Document) { d.MIMEType = "" },
			wantErr: ErrEmptyMIMEType,
		},
		{
			name:    "invalid status",
			mutate:  func(d *Document) { d.Status = DocumentStatus(99) },
			wantErr: ErrInvalidStatus,
		},
		{
			name:    "ready without chunk count",
			mutate:  func(d *Document) { d.Status = StatusReady },
			wantErr: ErrStatusFields,
		},
		{
			name: "processing with chunk count",
			mutate: func(d *Document) {
				d.ChunkCount = 2
			},
			wantErr: ErrStatusFields,
		},
		{
			name:    "error without message",
			mutate:  func(d *Document) { d.Status = StatusError },
			wantErr: ErrStatusFields,
		},
		{
			name: "ready with error message",
			mutate: func(d *Document) {
				d.Status = StatusReady
				d.ChunkCount = 1
				d.ErrorMessage = "stale"
			},
			wantErr: ErrStatusFields,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var doc *Document
			if !tt.nilDoc {
				doc = validDocument()
				tt.mutate(doc)
			}
			err := ValidateDocument(doc)

			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateDocument() error = %v, want nil", err)
				}
				return
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateDocument() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("ValidateDocument() error = %v, want wrapped ErrValidation", err)
			}
		})
	}
}

func TestValidateChunk(t *testing.T) {
	tests := []struct {
		name    string
		chunk   *DocumentChunk
		wantErr error
	}{
		{
			name:  "valid chunk",
			chunk: &DocumentChunk{Content: "text", ChunkIndex: 0, Vector: []float32{1}},
		},
		{
			name:    "nil chunk",
			chunk:   nil,
			wantErr: ErrValidation,
		},
		{
			name:    "empty content",
			chunk:   &DocumentChunk{ChunkIndex: 0, Vector: []float32{1}},
			wantErr: ErrEmptyContent,
		},
		{
			name:    "negative index",
			chunk:   &DocumentChunk{Content: "text", ChunkIndex: -1, Vector: []float32{1}},
			wantErr: ErrValidation,
		},
		{
			name:    "missing vector",
			chunk:   &DocumentChunk{Content: "text"},
			wantErr: ErrEmptyVector,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChunk(tt.chunk)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateChunk() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateChunk() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateMessage(t *testing.T) {
	tests := []struct {
		name    string
		msg     *Message
		wantErr error
	}{
		{
			name: "valid user message",
			msg:  &Message{Role: RoleUser, Content: "How many remote days?"},
		},
		{
			name: "valid assistant message with sources",
			msg: &Message{
				Role:    RoleAssistant,
				Content: "Two days.",
				Sources: []Source{{DocumentId: 1, ChunkIndex: 0}},
			},
		},
		{
			name:    "user message with sources",
			msg:     &Message{Role: RoleUser, Content: "q", Sources: []Source{}},
			wantErr: ErrValidation,
		},
		{
			name:    "empty content",
			msg:     &Message{Role: RoleUser},
			wantErr: ErrEmptyContent,
		},
		{
			name:    "invalid role",
			msg:     &Message{Role: Role(9), Content: "q"},
			wantErr: ErrInvalidRole,
		},
		{
			name:    "future timestamp",
			msg:     &Message{Role: RoleUser, Content: "q", Timestamp: time.Now().Add(time.Hour)},
			wantErr: ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessage(tt.msg)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateMessage() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateMessage() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		from, to DocumentStatus
		ok       bool
	}{
		{StatusProcessing, StatusReady, true},
		{StatusProcessing, StatusError, true},
		{StatusProcessing, StatusProcessing, false},
		{StatusReady, StatusError, false},
		{StatusError, StatusReady, false},
		{StatusReady, StatusReady, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if tt.ok && err != nil {
				t.Errorf("ValidateTransition() error = %v, want nil", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("ValidateTransition() error = %v, want ErrInvalidTransition", err)
			}
		})
	}
}

func TestValidateSessionID(t *testing.T) {
	if err := ValidateSessionID("abc"); err != nil {
		t.Errorf("ValidateSessionID() error = %v", err)
	}
	if err := ValidateSessionID(""); !errors.Is(err, ErrEmptySessionID) {
		t.Errorf("ValidateSessionID(\"\") error = %v, want ErrEmptySessionID", err)
	}
}
