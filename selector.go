package ragcore

// selectMethod picks which retrieval strategy to run for a query,
// given its analysis. It is a plain map-and-switch rather than a
// reflection-based registry: the set of retrieval methods is small and
// fixed, so a dynamic plugin mechanism would add indirection without
// adding flexibility.
//
//   - keyword queries (short, few stopwords, quoted phrases) favor BM25
//   - natural-language questions favor dense vector search
//   - anything ambiguous falls back to hybrid, which costs more but
//     never scores worse than either leg alone for a mixed query
func selectMethod(analysis QueryAnalysis) RetrievalMethod {
	switch analysis.Type {
	case QueryKeyword:
		return MethodBM25
	case QueryNaturalLang:
		return MethodVector
	default:
		return MethodHybrid
	}
}

// retrievalMethods enumerates the methods selectMethod can return, for
// callers that want to validate a caller-supplied override.
var retrievalMethods = map[RetrievalMethod]struct{}{
	MethodBM25:   {},
	MethodVector: {},
	MethodHybrid: {},
}

// isValidMethod reports whether m is a RetrievalMethod the pipeline
// knows how to execute.
func isValidMethod(m RetrievalMethod) bool {
	_, ok := retrievalMethods[m]
	return ok
}
