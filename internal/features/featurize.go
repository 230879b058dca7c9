package features

import "anirec/internal/model"

// Column layout of a feature row. The last column is the regression target.
const (
	ColGenre = iota
	ColStudio
	ColTag
	ColStaff
	ColQuality
	ColTarget
	NumColumns
)

// MinTagRank is the lowest tag rank that contributes to the tag affinity.
const MinTagRank = 66

// Metadata travels with a feature row for display and ranking.
type Metadata struct {
	Title string `json:"title"`
	Image string `json:"image"`
	URL   string `json:"url"`
}

// FeatureRow is one item's feature vector plus its metadata.
type FeatureRow struct {
	X    [NumColumns]float64
	Meta Metadata
}

// Build constructs one row per item, in input order, using frozen affinities
// and defaults. The target column carries item.Target(): the personal score
// for list entries and 0 for catalog entries.
func Build(items []model.Item, aff Affinities, def Defaults) []FeatureRow {
	rows := make([]FeatureRow, 0, len(items))
	for _, it := range items {
		m := it.Details()
		var row FeatureRow

		genreScores := make([]float64, 0, len(m.Genres))
		for _, g := range m.Genres {
			genreScores = append(genreScores, lookup(aff.Genres, g, def.Genre))
		}
		row.X[ColGenre] = Average(genreScores)

		var studioScores []float64
		for _, s := range m.Studios {
			if !s.IsAnimationStudio {
				continue
			}
			studioScores = append(studioScores, lookup(aff.Studios, s.Name, def.Studio))
		}
		row.X[ColStudio] = Average(studioScores)

		var tagScores []float64
		for _, t := range m.Tags {
			if t.Rank < MinTagRank {
				continue
			}
			tagScores = append(tagScores, lookup(aff.Tags, t.Name, def.Tag))
		}
		row.X[ColTag] = Average(tagScores)

		staffScores := make([]float64, 0, len(m.Staff))
		for _, s := range m.Staff {
			staffScores = append(staffScores, lookup(aff.Staff, s.ID, def.Staff))
		}
		row.X[ColStaff] = Average(staffScores)

		row.X[ColQuality] = m.AverageScore
		row.X[ColTarget] = it.Target()
		row.Meta = Metadata{Title: m.Title, Image: m.CoverImage, URL: m.SiteURL}
		rows = append(rows, row)
	}
	return rows
}

func lookup[K comparable](m map[K]float64, k K, def float64) float64 {
	if v, ok := m[k]; ok {
		return v
	}
	return def
}

// Matrix copies the rows' vectors into a fresh matrix.
func Matrix(rows []FeatureRow) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		v := make([]float64, NumColumns)
		copy(v, r.X[:])
		out[i] = v
	}
	return out
}

// SplitXY separates the input columns from the target column.
func SplitXY(matrix [][]float64) ([][]float64, []float64) {
	X := make([][]float64, len(matrix))
	y := make([]float64, len(matrix))
	for i, row := range matrix {
		last := len(row) - 1
		X[i] = append([]float64(nil), row[:last]...)
		y[i] = row[last]
	}
	return X, y
}
