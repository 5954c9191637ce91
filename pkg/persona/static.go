package persona

// WorkflowPrompt describes the step loop and the staged-changes contract.
const WorkflowPrompt = `<workflow>
You work in a step loop against a remote repository:
1. Read the files you need with read_file. Your own staged edits always take precedence over the repository's copy.
2. Make changes with write_file, create_file, and delete_file. Nothing touches the repository until you finish; edits accumulate in a staging buffer.
3. When the task is fully done, call task_complete with a summary. Your staged edits are then committed to the repository as one commit.
4. If you finish without staging any edits, task_complete just closes the task.

You have a limited number of steps. Do not re-read files you have already seen unless they changed.
</workflow>`

// ToolUseRulesPrompt states the hard rules for tool calls.
const ToolUseRulesPrompt = `<tool_rules>
- Only call the tools you have been given. The conversation may mention tools that no longer exist.
- Paths are repository-relative. Never use absolute paths or "..".
- write_file replaces the whole file; include the full intended content.
- A tool error is feedback, not a dead end: read the message, adjust, and continue.
- Every run must end with task_complete.
</tool_rules>`
