package llm

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedClient replays canned completions in order. Tests use it to drive
// the interpreters without a network.
type ScriptedClient struct {
	mu        sync.Mutex
	responses []string
	calls     []string
	err       error
}

// NewScriptedClient queues the given responses.
func NewScriptedClient(responses ...string) *ScriptedClient {
	return &ScriptedClient{responses: responses}
}

// Fail makes every subsequent call return err.
func (c *ScriptedClient) Fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Calls returns the prompts seen so far.
func (c *ScriptedClient) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	copy(out, c.calls)
	return out
}

// Complete pops the next scripted response.
func (c *ScriptedClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem pops the next scripted response.
func (c *ScriptedClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", wrapCtxErr(err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, systemPrompt+"\n---\n"+userPrompt)
	if c.err != nil {
		return "", c.err
	}
	if len(c.responses) == 0 {
		return "", fmt.Errorf("scripted client exhausted after %d calls", len(c.calls))
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]
	return resp, nil
}
