package crawler

// OutcomeKind tags the terminal state of one page's pipeline.
type OutcomeKind string

// Outcome kinds. Crawled and Invalid are written to the page store; Errored
// leaves the page pending for a later run.
const (
	OutcomeCrawled OutcomeKind = "crawled"
	OutcomeInvalid OutcomeKind = "invalid"
	OutcomeErrored OutcomeKind = "errored"
)

// Stage names the pipeline step an outcome was decided at.
type Stage string

// Pipeline stages in execution order.
const (
	StageFetch  Stage = "fetch"
	StageChunk  Stage = "chunk"
	StageLinks  Stage = "links"
	StageClear  Stage = "clear"
	StageEmbed  Stage = "embed"
	StageUpsert Stage = "upsert"
	StageMark   Stage = "mark"
	StageDone   Stage = "done"
)

// Outcome is the tagged result of evaluating and indexing one page.
type Outcome struct {
	Kind  OutcomeKind
	Stage Stage
	// Data is set whenever the page parsed, including the empty-text invalid case
	// whose outgoing links are still recorded.
	Data   *PageData
	Chunks []Chunk
	Reason string
	Err    error
}

// Crawled builds a successful outcome ready for indexing.
func Crawled(data PageData, chunks []Chunk) Outcome {
	return Outcome{Kind: OutcomeCrawled, Stage: StageDone, Data: &data, Chunks: chunks}
}

// Invalid builds an outcome that permanently excludes the page.
func Invalid(stage Stage, reason string, data *PageData) Outcome {
	return Outcome{Kind: OutcomeInvalid, Stage: stage, Reason: reason, Data: data}
}

// Errored builds a transient-failure outcome.
func Errored(stage Stage, err error) Outcome {
	return Outcome{Kind: OutcomeErrored, Stage: stage, Err: err}
}
