package trace

import "github.com/dachid/flowscope/internal/shared/types"

// Known language and framework identifiers
const (
	LangJavaScript = "javascript"
	LangPython     = "python"
	LangUnknown    = "unknown"

	FrameworkLangChain  = "langchain"
	FrameworkLlamaIndex = "llamaindex"
	FrameworkCustom     = "custom"
)

// Detection confidence levels for each tier of the cascade. Everything
// strictly below ConfidenceThreshold counts as an ambiguous guess.
const (
	ConfidenceExplicit  = 1.0
	ConfidenceShape     = 0.8
	ConfidencePartial   = 0.4
	ConfidenceFallback  = 0.3
	ConfidenceThreshold = 0.5
)

// SupportedLanguages lists language identifiers this engine reports via
// the status endpoint for client capability negotiation.
var SupportedLanguages = []string{LangJavaScript, "typescript", LangPython, LangUnknown}

// SupportedFrameworks lists framework identifiers this engine recognizes.
var SupportedFrameworks = []string{FrameworkLangChain, FrameworkLlamaIndex, FrameworkCustom}

// Detector infers the producing language and framework of a legacy or
// partially-specified trace. Pure heuristic cascade; never fails.
type Detector struct{}

// NewDetector creates a detector
func NewDetector() *Detector {
	return &Detector{}
}

// Detect runs the heuristic cascade:
//  1. Explicit metadata fields win outright.
//  2. Payload shape sniffing: LangChain callback payloads carry
//     run_id/serialized, LlamaIndex payloads carry query_id/node_ids.
//  3. Anything unrecognizable is custom/unknown at low confidence.
func (d *Detector) Detect(t *types.Trace) types.Detection {
	lang, hasLang := t.MetaString(types.MetaLanguage)
	framework, hasFramework := t.MetaString(types.MetaFramework)
	if hasLang && hasFramework {
		return types.Detection{Language: lang, Framework: framework, Confidence: ConfidenceExplicit}
	}

	if t.DataHas("run_id") || t.DataHas("serialized") {
		// LangChain payloads look the same from JS and Python; this
		// ingestion path defaults to JS unless metadata says otherwise.
		if !hasLang {
			lang = LangJavaScript
		}
		return types.Detection{Language: lang, Framework: FrameworkLangChain, Confidence: ConfidenceShape}
	}
	if t.DataHas("query_id") || t.DataHas("node_ids") {
		if !hasLang {
			lang = LangPython
		}
		return types.Detection{Language: lang, Framework: FrameworkLlamaIndex, Confidence: ConfidenceShape}
	}

	if !hasLang {
		lang = LangUnknown
	}
	if !hasFramework {
		framework = FrameworkCustom
	}
	confidence := ConfidenceFallback
	if hasLang || hasFramework {
		// A partial explicit hint is better than a blind guess but
		// still below the trust threshold.
		confidence = ConfidencePartial
	}
	return types.Detection{Language: lang, Framework: framework, Confidence: confidence}
}
