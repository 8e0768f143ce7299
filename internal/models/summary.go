// internal/models/summary.go
package models

import (
	"math"
	"time"
)

type FoodItem struct {
	Timestamp time.Time              `json:"timestamp"`
	PhotoURL  string                 `json:"photo_url,omitempty"`
	Calories  float64                `json:"calories"`
	Proteins  float64                `json:"proteins"`
	Fats      float64                `json:"fats"`
	Carbs     float64                `json:"carbs"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

type DailySummary struct {
	Date           string     `json:"date"`
	TotalCalories  float64    `json:"total_calories"`
	TotalProteins  float64    `json:"total_proteins"`
	TotalFats      float64    `json:"total_fats"`
	TotalCarbs     float64    `json:"total_carbs"`
	FoodItemsCount int        `json:"food_items_count"`
	FoodItems      []FoodItem `json:"food_items"`
}

// SummarizeDay aggregates photo_analysis entries into per-day nutrition
// totals. Entries without nutrition data are skipped; missing fields count
// as zero. Totals are rounded to one decimal. An empty slice yields an
// all-zero summary, not an error.
func SummarizeDay(date time.Time, entries []LogEntry) DailySummary {
	summary := DailySummary{
		Date:      date.Format("2006-01-02"),
		FoodItems: []FoodItem{},
	}

	for _, entry := range entries {
		if entry.ActionType != ActionPhotoAnalysis || entry.KBZHU == nil {
			continue
		}
		k := entry.KBZHU

		summary.TotalCalories += k.Calories
		summary.TotalProteins += k.Proteins
		summary.TotalFats += k.Fats
		summary.TotalCarbs += k.Carbohydrates

		summary.FoodItems = append(summary.FoodItems, FoodItem{
			Timestamp: entry.Timestamp,
			PhotoURL:  entry.PhotoURL,
			Calories:  k.Calories,
			Proteins:  k.Proteins,
			Fats:      k.Fats,
			Carbs:     k.Carbohydrates,
			Metadata:  entry.Metadata,
		})
	}

	summary.FoodItemsCount = len(summary.FoodItems)
	summary.TotalCalories = round1(summary.TotalCalories)
	summary.TotalProteins = round1(summary.TotalProteins)
	summary.TotalFats = round1(summary.TotalFats)
	summary.TotalCarbs = round1(summary.TotalCarbs)
	return summary
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
