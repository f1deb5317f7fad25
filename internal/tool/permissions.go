package tool

import "encoding/json"

// This file declares RequiresPermission and GetInfo for every concrete
// tool in the package. Kept separate from each tool's own file so the
// permission posture of the whole toolset can be reviewed in one place.

func (t *BashTool) RequiresPermission() bool { return true }
func (t *BashTool) GetInfo(input json.RawMessage) string {
	var in struct {
		Command string `json:"command"`
	}
	_ = json.Unmarshal(input, &in)
	return "Run: " + in.Command
}

func (t *BatchTool) RequiresPermission() bool { return true }
func (t *BatchTool) GetInfo(input json.RawMessage) string {
	return "Run a batch of tool calls"
}

func (t *EditTool) RequiresPermission() bool { return true }
func (t *EditTool) GetInfo(input json.RawMessage) string {
	var in struct {
		FilePath string `json:"filePath"`
	}
	_ = json.Unmarshal(input, &in)
	return "Edit " + in.FilePath
}

func (t *GlobTool) RequiresPermission() bool            { return false }
func (t *GlobTool) GetInfo(input json.RawMessage) string { return "Search for files" }

func (t *GrepTool) RequiresPermission() bool            { return false }
func (t *GrepTool) GetInfo(input json.RawMessage) string { return "Search file contents" }

func (t *ListTool) RequiresPermission() bool            { return false }
func (t *ListTool) GetInfo(input json.RawMessage) string { return "List directory contents" }

func (t *ReadTool) RequiresPermission() bool { return false }
func (t *ReadTool) GetInfo(input json.RawMessage) string {
	var in ReadInput
	_ = json.Unmarshal(input, &in)
	return "Read " + in.FilePath
}

func (t *TaskTool) RequiresPermission() bool { return true }
func (t *TaskTool) GetInfo(input json.RawMessage) string {
	var in TaskInput
	_ = json.Unmarshal(input, &in)
	if in.SubagentType != "" {
		return "Launch " + in.SubagentType + " agent: " + in.Description
	}
	return "Spawn a subagent task"
}

func (t *TodoReadTool) RequiresPermission() bool            { return false }
func (t *TodoReadTool) GetInfo(input json.RawMessage) string { return "Read the todo list" }

func (t *TodoWriteTool) RequiresPermission() bool            { return false }
func (t *TodoWriteTool) GetInfo(input json.RawMessage) string { return "Update the todo list" }

func (t *WebFetchTool) RequiresPermission() bool { return true }
func (t *WebFetchTool) GetInfo(input json.RawMessage) string {
	var in struct {
		URL string `json:"url"`
	}
	_ = json.Unmarshal(input, &in)
	return "Fetch " + in.URL
}

func (t *WriteTool) RequiresPermission() bool { return true }
func (t *WriteTool) GetInfo(input json.RawMessage) string {
	var in struct {
		FilePath string `json:"filePath"`
	}
	_ = json.Unmarshal(input, &in)
	return "Write " + in.FilePath
}
