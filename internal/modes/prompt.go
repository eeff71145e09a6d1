package modes

// Default prompt templates. Each is overridable through the matching mode
// config; placeholders use {name} interpolation so user overrides can
// reorder or drop variables freely.

const defaultVotePrompt = `You are choosing the best answer to this question:

{question}

Here are the candidate answers:

{candidates}

Reply with ONLY the number of the best candidate (1-{count}). Do not explain.`

const defaultJudgePrompt = `You are judging two answers to this question:

{question}

Answer A ({labelA}):
{responseA}

Answer B ({labelB}):
{responseB}

Which answer is better? Reply with ONLY "A" or "B", optionally followed by one sentence of reasoning.`

const defaultDecomposePrompt = `You are coordinating {count} worker models to answer this question:

{question}

Available workers: {workers}

Break the question into focused subtasks and output ONLY JSON in this shape:
{"subtasks": [{"id": "subtask-1", "description": "...", "assignedModel": "worker id or omit"}]}`

const defaultWorkerPrompt = `You are one worker in a team answering this question:

{question}

Your subtask:
{task}

Complete only your subtask. Be thorough but stay in scope.`

const defaultSynthesizePrompt = `The original question was:

{question}

Worker results:

{context}

Synthesize these results into one complete, coherent answer to the original question.`

const defaultRefinePrompt = `The question was:

{question}

Your previous answer:

{previous}

Improve your answer: fix mistakes, tighten the reasoning, and fill gaps. Reply with the full improved answer only.`

const defaultCritiquePrompt = `The question was:

{question}

A peer model answered:

{previous}

Write a concise, specific critique: what is wrong, missing, or could be stronger.`

const defaultRevisePrompt = `The question was:

{question}

Your answer:

{previous}

A reviewer's critique of your answer:

{context}

Revise your answer to address the critique. Reply with the full revised answer only.`

const defaultMergePrompt = `The question was:

{question}

Several models answered:

{context}

Merge these answers into a single best answer. Prefer points where the answers agree; resolve disagreements explicitly.`

const defaultChainPrompt = `The question was:

{question}

The answer so far, produced by previous models in a chain:

{previous}

Improve and extend this answer. Reply with the full updated answer only.`

const defaultRoutePrompt = `You are routing this question to the best-suited model:

{question}

Available models:

{candidates}

Reply with ONLY the number of the best-suited model (1-{count}), optionally followed by one sentence of reasoning.`

const defaultEvaluatePrompt = `The question was:

{question}

Current answers from all models:

{context}

Do these answers substantially agree on the key points? Reply with ONLY "AGREE" or "DISAGREE", optionally followed by one sentence.`

const defaultConsensusRevisePrompt = `The question was:

{question}

Answers from all models in the previous round:

{context}

Considering the other answers, write your updated answer. Move toward the strongest common position where you genuinely agree.`

const defaultOpeningPrompt = `You are debating this question:

{question}

Present your opening argument for the strongest answer. Be direct and concrete.`

const defaultRebuttalPrompt = `You are debating this question:

{question}

Your opponent argued:

{previous}

Rebut their argument and strengthen your own position. If they are right on a point, concede it and move on.`

const defaultVerdictPrompt = `You are judging a debate on this question:

{question}

Debater A ({labelA}) final position:
{responseA}

Debater B ({labelB}) final position:
{responseB}

Who made the stronger case? Reply with ONLY "A" or "B", optionally followed by one sentence of reasoning.`

const defaultDeliberatePrompt = `The question was:

{question}

Your fellow council members answered:

{context}

State your final position on the question, taking the other answers into account.`

const defaultSummarizePrompt = `The question was:

{question}

Final positions of the council members:

{context}

As chair, summarize the council's verdict into one answer, noting any unresolved dissent.`

const defaultConfidencePrompt = `The question was:

{question}

Your answer:

{previous}

How confident are you that your answer is correct and complete? Reply with ONLY a number from 0 to 100.`

const defaultExplainPrompt = `The question was:

{question}

The answer given:

{previous}

Explain this answer to {audience}. Keep it accurate but match the audience.`

// orDefault returns override when non-empty, else fallback.
func orDefault(override, fallback string) string {
	if override != "" {
		return override
	}
	return fallback
}
