package state

import "time"

// Status represents the lifecycle of a volume or product record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// AllStatuses lists task statuses in lifecycle order.
var AllStatuses = []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed}

// ParseStatus validates s as a task status.
func ParseStatus(s string) (Status, bool) {
	for _, status := range AllStatuses {
		if string(status) == s {
			return status, true
		}
	}
	return "", false
}

// DownloadStatus is the outcome of a download attempt.
type DownloadStatus string

const (
	DownloadCompleted DownloadStatus = "completed"
	DownloadFailed    DownloadStatus = "failed"
	// DownloadPartial marks a transfer whose written size did not match.
	DownloadPartial DownloadStatus = "partial"
)

// AllDownloadStatuses lists download statuses.
var AllDownloadStatuses = []DownloadStatus{DownloadCompleted, DownloadFailed, DownloadPartial}

// Error types recorded on product records that fail before rendering.
const (
	ErrorTypeNoArtifactPath = "NO_ARTIFACT_PATH"
	ErrorTypeFileNotFound   = "FILE_NOT_FOUND"
)

// Download is one row of the downloads table.
type Download struct {
	Filename   string
	RemotePath string
	LocalPath  string
	Size       int64
	Checksum   string
	Source     string
	Strategy   string
	VolNr      string
	FieldType  string
	Observed   time.Time
	Status     DownloadStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Volume is one row of the volume_processing table.
type Volume struct {
	VolumeID         string
	Source           string
	Strategy         string
	VolNr            string
	Observed         time.Time
	Status           Status
	ArtifactPath     string
	ErrorMessage     string
	IsComplete       bool
	ExpectedFields   []string
	DownloadedFields []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ProcessedAt      time.Time
}

// Product is one row of the product_generation table.
type Product struct {
	VolumeID     string
	ProductType  string
	Status       Status
	ErrorMessage string
	ErrorType    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ProductCandidate pairs a completed volume with its product record, if any.
type ProductCandidate struct {
	Volume  Volume
	Product *Product
}

// NewVolume describes a volume to register.
type NewVolume struct {
	VolumeID         string
	Source           string
	Strategy         string
	VolNr            string
	Observed         time.Time
	IsComplete       bool
	ExpectedFields   []string
	DownloadedFields []string
}

// DownloadFilter narrows ListDownloads. Zero values match everything.
type DownloadFilter struct {
	Source string
	Status DownloadStatus
	Limit  int
}

// VolumeFilter narrows ListVolumes. Zero values match everything.
type VolumeFilter struct {
	Source   string
	Statuses []Status
	Limit    int
}

// ProductFilter narrows ListProducts. Zero values match everything.
type ProductFilter struct {
	ProductType string
	Statuses    []Status
	Limit       int
}

// Counts aggregates rows per table and status.
type Counts struct {
	Downloads map[string]int
	Volumes   map[string]int
	Products  map[string]int
}
