package errstat

import "github.com/studiowebux/perfwatch/internal/types"

// SetStatusCodeData reshapes a flat status code snapshot into pipeline groups.
// Single-interface executions collapse to one Total group. Otherwise each
// declared pipeline becomes a group holding an entry per declared child, and
// a Total group is appended when the snapshot reports one. Targets missing
// from the snapshot count as zero.
func SetStatusCodeData(counters []types.StatusCodeCounter, detail *types.ExecutionDetail) types.StatusCodeData {
	byName := make(map[string]types.StatusCodes, len(counters))
	for _, c := range counters {
		byName[c.Name] = c.StatusCodes
	}

	if detail.SingleInterface() {
		return types.StatusCodeData{{Key: types.TotalTarget, Codes: byName[types.TotalTarget]}}
	}

	data := make(types.StatusCodeData, 0, len(detail.Pipelines)+1)
	for _, p := range detail.Pipelines {
		if p.Name == types.TotalTarget {
			continue
		}
		group := types.StatusCodeGroup{Key: p.Name, Codes: byName[p.Name]}
		for _, child := range p.Children {
			group.Children = append(group.Children, types.StatusCodeEntry{
				Name:  child,
				Codes: byName[child],
			})
		}
		data = append(data, group)
	}

	if total, ok := byName[types.TotalTarget]; ok {
		data = append(data, types.StatusCodeGroup{Key: types.TotalTarget, Codes: total})
	}
	return data
}
