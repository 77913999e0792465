package functionrepo

import (
	"encoding/json"

	domain "github.com/funcbase/engine/internal/biz/function"
)

func (po *FunctionVersion) ToDomain() *domain.FunctionMeta {
	meta := &domain.FunctionMeta{
		Name:         po.Name,
		AuthLevel:    domain.AuthLevel(po.AuthLevel),
		FilePath:     po.FilePath,
		ContentHash:  po.ContentHash,
		VersionID:    po.VersionID,
		InputSchema:  json.RawMessage(po.InputSchema),
		OutputSchema: json.RawMessage(po.OutputSchema),
		LastLoadedAt: po.LastLoadedAt,
	}
	_ = json.Unmarshal(po.Tags, &meta.Tags)
	_ = json.Unmarshal(po.Requirements, &meta.Requirements)
	return meta
}

func (po *FunctionVersion) FromDomain(meta *domain.FunctionMeta) *FunctionVersion {
	tags, _ := json.Marshal(meta.Tags)
	reqs, _ := json.Marshal(meta.Requirements)
	return &FunctionVersion{
		VersionID:    meta.VersionID,
		Name:         meta.Name,
		AuthLevel:    string(meta.AuthLevel),
		Tags:         tags,
		FilePath:     meta.FilePath,
		ContentHash:  meta.ContentHash,
		Requirements: reqs,
		InputSchema:  []byte(meta.InputSchema),
		OutputSchema: []byte(meta.OutputSchema),
		LastLoadedAt: meta.LastLoadedAt,
	}
}
