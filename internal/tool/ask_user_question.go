package tool

import (
	"context"
	"encoding/json"
	"fmt"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/oklog/ulid/v2"

	"github.com/loomwork/loom/internal/core"
)

const askUserQuestionDescription = `Ask the user one or more multiple-choice questions and wait for their
answers. Use this when you need the user to decide between a small set of
options rather than typing free-form text.`

// AskUserQuestionTool lets the agent pause and collect structured answers
// from whoever is driving the session, rather than guessing.
type AskUserQuestionTool struct{}

// NewAskUserQuestionTool creates the AskUserQuestion tool.
func NewAskUserQuestionTool() *AskUserQuestionTool {
	return &AskUserQuestionTool{}
}

// askUserQuestionInput mirrors the questions array the tool's JSON Schema
// advertises: 1-4 questions, each with 2-4 options.
type askUserQuestionInput struct {
	Questions []questionInput `json:"questions"`
}

type questionInput struct {
	Question    string   `json:"question"`
	Header      string   `json:"header"`
	Options     []string `json:"options"`
	MultiSelect bool     `json:"multiSelect"`
}

func (t *AskUserQuestionTool) ID() string          { return "AskUserQuestion" }
func (t *AskUserQuestionTool) Description() string { return askUserQuestionDescription }

func (t *AskUserQuestionTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"questions": {
				"type": "array",
				"minItems": 1,
				"maxItems": 4,
				"items": {
					"type": "object",
					"properties": {
						"question": {"type": "string"},
						"header": {"type": "string"},
						"options": {
							"type": "array",
							"minItems": 2,
							"maxItems": 4,
							"items": {"type": "string"}
						},
						"multiSelect": {"type": "boolean"}
					},
					"required": ["question", "header", "options"]
				}
			}
		},
		"required": ["questions"]
	}`)
}

func (t *AskUserQuestionTool) RequiresPermission() bool { return false }
func (t *AskUserQuestionTool) GetInfo(input json.RawMessage) string {
	return "Ask the user a clarifying question"
}

func (t *AskUserQuestionTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	var in askUserQuestionInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("ask_user_question: invalid input: %w", err)
	}
	if len(in.Questions) < 1 || len(in.Questions) > 4 {
		return nil, fmt.Errorf("ask_user_question: expected 1-4 questions, got %d", len(in.Questions))
	}
	questions := make([]core.UserQuestion, 0, len(in.Questions))
	for _, q := range in.Questions {
		if len(q.Options) < 2 || len(q.Options) > 4 {
			return nil, fmt.Errorf("ask_user_question: question %q must have 2-4 options, got %d", q.Question, len(q.Options))
		}
		questions = append(questions, core.UserQuestion{
			Question:    q.Question,
			Header:      q.Header,
			Options:     q.Options,
			MultiSelect: q.MultiSelect,
		})
	}

	if toolCtx.Internals == nil {
		return nil, fmt.Errorf("ask_user_question: no internals available in this context")
	}

	requestID := "ask_" + ulid.Make().String()
	answers, err := toolCtx.Internals.AskUserQuestion(ctx, requestID, questions)
	if err != nil {
		return nil, fmt.Errorf("ask_user_question: %w", err)
	}

	out, err := json.Marshal(answers)
	if err != nil {
		return nil, fmt.Errorf("ask_user_question: marshal answers: %w", err)
	}

	return &Result{
		Title:  "Question answered",
		Output: string(out),
	}, nil
}

func (t *AskUserQuestionTool) EinoTool() einotool.InvokableTool {
	return &askUserQuestionEinoWrapper{tool: t}
}

type askUserQuestionEinoWrapper struct {
	tool *AskUserQuestionTool
}

func (w *askUserQuestionEinoWrapper) Info(ctx context.Context) (*schema.ToolInfo, error) {
	params := parseJSONSchemaToParams(w.tool.Parameters())
	return &schema.ToolInfo{
		Name:        w.tool.ID(),
		Desc:        w.tool.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}, nil
}

func (w *askUserQuestionEinoWrapper) InvokableRun(ctx context.Context, argsJSON string, opts ...einotool.Option) (string, error) {
	result, err := w.tool.Execute(ctx, json.RawMessage(argsJSON), &Context{})
	if err != nil {
		return "", err
	}
	return result.Output, nil
}
