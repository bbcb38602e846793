package validator

import "testing"

type messageInput struct {
	Message   string `validate:"required,max=4000"`
	SessionID string `validate:"session_id"`
	Platform  string `validate:"platform"`
}

func TestCustomTags(t *testing.T) {
	v := New()

	if err := v.Struct(messageInput{Message: "oi", SessionID: "web_1_abc", Platform: "WhatsApp"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := v.Struct(messageInput{Message: "oi", SessionID: "has space"}); err == nil {
		t.Fatal("expected session id with whitespace to fail")
	}
	if err := v.Struct(messageInput{Message: "oi", Platform: "telegram"}); err == nil {
		t.Fatal("expected unknown platform to fail")
	}
	if err := v.Struct(messageInput{}); err == nil {
		t.Fatal("expected missing message to fail")
	}
}
