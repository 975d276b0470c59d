package qdrant

import (
	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"

	"github.com/agrodocs/consulta/internal/domain/chunk"
	"github.com/agrodocs/consulta/internal/domain/search/filter"
	"github.com/agrodocs/consulta/internal/domain/search/result"
)

// pointID derives the deterministic UUID Qdrant requires from a chunk ID.
func pointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String()
}

// buildPayload flattens chunk text and provenance into point payload
// fields. chunk_id keeps the original identity so hits map back to it.
func buildPayload(c chunk.Chunk) map[string]*pb.Value {
	meta := c.Meta()
	return map[string]*pb.Value{
		"chunk_id":      stringValue(c.ID()),
		"filename":      stringValue(meta.Filename),
		"page":          intValue(meta.Page),
		"chunk_index":   intValue(meta.ChunkIndex),
		"source":        stringValue(meta.Source),
		"total_pages":   intValue(meta.TotalPages),
		"start_offset":  intValue(meta.StartOffset),
		"end_offset":    intValue(meta.EndOffset),
		"chunk_size":    intValue(meta.ChunkSize),
		"chunk_overlap": intValue(meta.Overlap),
		"modified_time": doubleValue(meta.ModifiedTime),
		"content":       stringValue(c.Content()),
	}
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func intValue(n int) *pb.Value {
	return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(n)}}
}

func doubleValue(f float64) *pb.Value {
	return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: f}}
}

// buildFilter maps the search filter onto payload conditions: the
// filename clause is an exact keyword match, the contains clause a
// full-text match against the chunk content.
func buildFilter(f filter.Filter) *pb.Filter {
	if f.IsEmpty() {
		return nil
	}

	var must []*pb.Condition
	if f.HasFilename() {
		must = append(must, fieldMatch("filename", f.Filename()))
	}
	if f.HasContains() {
		must = append(must, textMatch("content", f.Contains()))
	}
	return &pb.Filter{Must: must}
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}},
			},
		},
	}
}

func textMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Text{Text: value}},
			},
		},
	}
}

// parseHit maps a scored point back to a result via its payload.
func parseHit(hit *pb.ScoredPoint) result.Result {
	payload := hit.GetPayload()
	return result.New(
		payloadString(payload, "chunk_id"),
		float64(hit.GetScore()),
		payloadString(payload, "content"),
		payloadString(payload, "filename"),
		payloadInt(payload, "page"),
		payloadInt(payload, "chunk_index"),
	)
}

func payloadString(payload map[string]*pb.Value, key string) string {
	return payload[key].GetStringValue()
}

func payloadInt(payload map[string]*pb.Value, key string) int {
	return int(payload[key].GetIntegerValue())
}
