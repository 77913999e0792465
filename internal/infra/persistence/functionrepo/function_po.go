package functionrepo

import (
	"time"

	"gorm.io/datatypes"
)

// FunctionVersion 函数版本镜像，按version_id不可变
type FunctionVersion struct {
	VersionID    string         `gorm:"column:version_id;primaryKey;size:36"`
	Name         string         `gorm:"column:name;size:255;not null;index"`
	AuthLevel    string         `gorm:"column:auth_level;size:20;not null"`
	Tags         datatypes.JSON `gorm:"column:tags;type:json"`
	FilePath     string         `gorm:"column:file_path;size:512"`
	ContentHash  string         `gorm:"column:content_hash;size:32;not null;index"`
	Requirements datatypes.JSON `gorm:"column:requirements;type:json"`
	InputSchema  datatypes.JSON `gorm:"column:input_schema;type:json"`
	OutputSchema datatypes.JSON `gorm:"column:output_schema;type:json"`
	LastLoadedAt time.Time      `gorm:"column:last_loaded_at;not null"`
	CreatedAt    time.Time      `gorm:"autoCreateTime"`
}

func (FunctionVersion) TableName() string {
	return "function_versions"
}
