package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
)

// EmailSender is the outbound mail transport the email tool delegates to.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
	Configured() bool
}

type emailTool struct {
	sender EmailSender
}

func NewEmailTool(sender EmailSender) Tool {
	return &emailTool{sender: sender}
}

func (t *emailTool) Name() string { return ToolSendEmail }

func (t *emailTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        ToolSendEmail,
		Description: "Send an email on behalf of the user. Use when the user asks to email someone.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"to":      {Type: genai.TypeString, Description: "Recipient email address"},
				"subject": {Type: genai.TypeString, Description: "Email subject line"},
				"body":    {Type: genai.TypeString, Description: "Plain-text email body"},
			},
			Required: []string{"to", "subject", "body"},
		},
	}
}

func (t *emailTool) Execute(ctx context.Context, userID uuid.UUID, args map[string]any) string {
	if t.sender == nil || !t.sender.Configured() {
		return "The email service is not configured, so the email could not be sent."
	}

	to, err := argString(args, "to")
	if err != nil {
		logToolFailure(ToolSendEmail, err)
		return fmt.Sprintf("Could not send the email: %v.", err)
	}
	if !strings.Contains(to, "@") {
		return fmt.Sprintf("Could not send the email: %q does not look like a valid address.", to)
	}

	subject, err := argString(args, "subject")
	if err != nil {
		logToolFailure(ToolSendEmail, err)
		return fmt.Sprintf("Could not send the email: %v.", err)
	}

	body, err := argString(args, "body")
	if err != nil {
		logToolFailure(ToolSendEmail, err)
		return fmt.Sprintf("Could not send the email: %v.", err)
	}

	if err := t.sender.Send(ctx, to, subject, body); err != nil {
		logToolFailure(ToolSendEmail, err)
		return fmt.Sprintf("Failed to send the email to %s. Check that the address is correct.", to)
	}

	return fmt.Sprintf("Email sent to %s with subject %q.", to, subject)
}
