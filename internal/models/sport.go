package models

import "time"

// Sport registry sections of the national register.
// 1 = recognized, 2 = all-Russian, 3 = national, 4 = applied/service.
type Sport struct {
	ID          int    `json:"id"`
	CodeBase    int    `json:"code_base"`
	CodeFull    string `json:"code_full"`
	Section     int    `json:"section"`
	CurrentName string `json:"current_name"`
}

type SportName struct {
	ID        int        `json:"id"`
	SportID   int        `json:"sport_id"`
	Name      string     `json:"name"`
	IsPrimary bool       `json:"is_primary"`
	ValidFrom *time.Time `json:"valid_from"`
	ValidTo   *time.Time `json:"valid_to"`
}

type SportDiscipline struct {
	ID      int    `json:"id"`
	SportID int    `json:"sport_id"`
	Name    string `json:"name"`
}

type SportRegistryVersion struct {
	ID          int       `json:"id"`
	Label       string    `json:"label"`
	FileHash    string    `json:"file_hash"`
	SportCount  int       `json:"sport_count"`
	NameCount   int       `json:"name_count"`
	ImportedAt  time.Time `json:"imported_at"`
}
