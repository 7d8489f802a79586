// Package api serves sketch queries over HTTP and gRPC. Both transports
// carry google.protobuf.Struct messages so HTTP responses are the protojson
// form of what gRPC returns.
package api

import (
	"time"

	"Go2NetSketch/internal/model"
	"Go2NetSketch/internal/query"
	"Go2NetSketch/pkg/countmin"

	"google.golang.org/protobuf/types/known/structpb"
)

func estimateStruct(e *query.Estimate) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"task":     e.Task,
		"flow":     e.Flow,
		"strategy": e.Strategy,
		"count":    e.Count,
	})
}

func hittersStruct(task string, hs []countmin.Hitter) (*structpb.Struct, error) {
	list := make([]any, len(hs))
	for i, h := range hs {
		list[i] = map[string]any{"flow": h.Key, "count": h.Count}
	}
	return structpb.NewStruct(map[string]any{
		"task":          task,
		"heavy_hitters": list,
	})
}

func tasksStruct(tasks []model.TaskInfo) (*structpb.Struct, error) {
	list := make([]any, len(tasks))
	for i, t := range tasks {
		fields := make([]any, len(t.Fields))
		for j, f := range t.Fields {
			fields[j] = f
		}
		list[i] = map[string]any{
			"name":           t.Name,
			"fields":         fields,
			"metric":         t.Metric,
			"strategy":       t.Strategy,
			"width":          t.Info.Width,
			"depth":          t.Info.Depth,
			"error_rate":     t.Info.ErrorRate,
			"confidence":     t.Info.Confidence,
			"elements_added": t.Info.ElementsAdded,
			"hasher":         t.Info.Hasher,
			"bytes":          t.Info.Bytes,
		}
	}
	return structpb.NewStruct(map[string]any{"tasks": list})
}

func historyStruct(task string, points []query.HistoryPoint) (*structpb.Struct, error) {
	list := make([]any, len(points))
	for i, p := range points {
		list[i] = map[string]any{
			"timestamp":      p.Timestamp.UTC().Format(time.RFC3339),
			"flow":           p.Flow,
			"value":          p.Value,
			"kind":           uint32(p.Kind),
			"elements_added": p.ElementsAdded,
		}
	}
	return structpb.NewStruct(map[string]any{"task": task, "points": list})
}

// hittersFromStruct is the inverse of hittersStruct.
func hittersFromStruct(st *structpb.Struct) []countmin.Hitter {
	vals := st.GetFields()["heavy_hitters"].GetListValue().GetValues()
	out := make([]countmin.Hitter, 0, len(vals))
	for _, v := range vals {
		f := v.GetStructValue().GetFields()
		out = append(out, countmin.Hitter{
			Key:   f["flow"].GetStringValue(),
			Count: int32(f["count"].GetNumberValue()),
		})
	}
	return out
}
