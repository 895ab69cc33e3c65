package dto

type StatusDTO struct {
	App     AppStatusDTO     `json:"app"`
	Storage StorageStatusDTO `json:"storage"`
	Engine  EngineStatusDTO  `json:"engine"`
	Gateway GatewayStatusDTO `json:"gateway"`
}

type AppStatusDTO struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	StartedAt string `json:"started_at"`
	UptimeSec int64  `json:"uptime_sec"`
	SafeMode  bool   `json:"safe_mode"`
}

type StorageStatusDTO struct {
	DBPath         string `json:"db_path"`
	SchemaVersion  int    `json:"schema_version"`
	SafeModeReason string `json:"safe_mode_reason,omitempty"`
}

type EngineStatusDTO struct {
	LevelPolicy    string `json:"level_policy"`
	Timezone       string `json:"timezone"`
	LevelUpFlashMs int    `json:"level_up_flash_ms"`
	CatalogVersion int    `json:"catalog_version"`
	OpenSessions   int    `json:"open_sessions"`
	PendingFlags   int    `json:"pending_flags"`
}

type GatewayStatusDTO struct {
	WriterID    string `json:"writer_id"`
	Watching    bool   `json:"watching"`
	Subscribers int    `json:"subscribers"`
	Replaced    int64  `json:"replaced_events"` // 订阅者跟不上时被覆盖的事件数
}
