package rank

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/sprite-ai/revroom/internal/model"
)

// DecodeRanking reads a ranking payload. An empty body or a JSON null
// yields nil, meaning ranking is unavailable.
func DecodeRanking(r io.Reader) (*model.RankingResponse, error) {
	var resp *model.RankingResponse
	if err := decodeOptional(r, &resp); err != nil {
		return nil, fmt.Errorf("decoding ranking: %w", err)
	}
	return resp, nil
}

// DecodeClusters reads a clustering payload. An empty body or a JSON null
// yields nil, meaning clustering is unavailable.
func DecodeClusters(r io.Reader) (*model.ClusterResponse, error) {
	var resp *model.ClusterResponse
	if err := decodeOptional(r, &resp); err != nil {
		return nil, fmt.Errorf("decoding clusters: %w", err)
	}
	return resp, nil
}

// LoadRanking reads a ranking payload from a file. An empty path returns nil.
func LoadRanking(path string) (*model.RankingResponse, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening ranking: %w", err)
	}
	defer f.Close()
	return DecodeRanking(f)
}

// LoadClusters reads a clustering payload from a file. An empty path returns nil.
func LoadClusters(path string) (*model.ClusterResponse, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening clusters: %w", err)
	}
	defer f.Close()
	return DecodeClusters(f)
}

func decodeOptional(r io.Reader, v any) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
