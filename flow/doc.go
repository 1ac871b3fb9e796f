// Package flow runs one conversational turn as an explicit state machine:
//
//	Deciding --(tool calls)--> ToolDispatch --> Deciding
//	Deciding --(no calls | budget spent)--> Finalizing --> Done
//
// Deciding asks the model, with tools, what to do next. ToolDispatch
// sanitizes the requested calls, executes them sequentially and appends one
// tool message per result. Finalizing streams the answer, without tools, to
// a Sink. Every Deciding transition consumes one step of a core.StepBudget,
// so a turn ends after at most MaxSteps decisions whatever the model does.
//
// Completion failures are never retried: the turn degrades to a static
// fallback message that is streamed and persisted like a normal answer.
package flow
