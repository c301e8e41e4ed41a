package notify

import (
	"context"
	"fmt"

	"github.com/taskflow/scheduler/internal/handlers"
)

// Handler returns a handlers.Handler bound to sender, registered under the
// name "notify.email". The payload must carry "to" and "subject" strings; a
// missing or wrong-typed one is a FatalError since no retry will fix a
// malformed task definition. "body" is optional and defaults to "".
func Handler(sender Sender) handlers.Handler {
	return func(ctx context.Context, tc handlers.Context, payload map[string]any) (map[string]any, error) {
		to, _ := payload["to"].(string)
		subject, _ := payload["subject"].(string)
		body, _ := payload["body"].(string)
		if to == "" || subject == "" {
			return nil, handlers.NewFatal(fmt.Errorf("payload missing required \"to\"/\"subject\" fields"))
		}

		if err := sender.Send(ctx, to, subject, body); err != nil {
			return nil, handlers.NewRetryable(err)
		}
		return map[string]any{"to": to, "subject": subject}, nil
	}
}
