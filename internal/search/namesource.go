package search

// NameSource searches a fixed slice of names (function names, file paths),
// grounded on FileSearcher/SymbolSearcher's name-table scan: every entry
// is tested with FindInMemory and scored by match position and name
// length, favoring earlier matches in shorter names, the portable equivalent of
// the source's `(case << 61) | (extra << 32) | haystack.len()` scoring
// (lower is better, same as here).
type NameSource struct {
	Names []string
}

// reportBatchSize mirrors the source's "called periodically, e.g. every
// few MBs" callback cadence, scaled down to an item count since this
// package searches short strings rather than raw memory.
const reportBatchSize = 256

func (n NameSource) Search(query Query, cancel <-chan struct{}, report func(batch []Result, deltaItemsDone, deltaItemsTotal, deltaBytesDone int)) {
	if query.Empty() {
		return
	}
	needle := []byte(query.Text)
	report(nil, 0, len(n.Names), 0)

	var batch []Result
	bytesDone, itemsDone := 0, 0
	for id, name := range n.Names {
		select {
		case <-cancel:
			return
		default:
		}
		hits := FindInMemory([]byte(name), needle, query.CaseSensitive)
		bytesDone += len(name)
		itemsDone++
		if len(hits) > 0 {
			batch = append(batch, Result{Score: int(hits[0])*1000 + len(name), ID: id})
		}
		if len(batch) >= reportBatchSize || id == len(n.Names)-1 {
			report(batch, itemsDone, 0, bytesDone)
			batch = nil
			bytesDone, itemsDone = 0, 0
		}
	}
}
