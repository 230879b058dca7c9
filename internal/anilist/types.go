package anilist

import "anirec/internal/model"

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type gqlError struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

type rawMedia struct {
	Title struct {
		Romaji string `json:"romaji"`
	} `json:"title"`
	Tags []struct {
		Name string `json:"name"`
		Rank int    `json:"rank"`
	} `json:"tags"`
	Genres       []string `json:"genres"`
	AverageScore *float64 `json:"averageScore"`
	Studios      struct {
		Nodes []struct {
			Name              string `json:"name"`
			IsAnimationStudio bool   `json:"isAnimationStudio"`
		} `json:"nodes"`
	} `json:"studios"`
	Staff struct {
		Edges []struct {
			Role string `json:"role"`
			Node struct {
				ID int `json:"id"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"staff"`
	CoverImage struct {
		Large string `json:"large"`
	} `json:"coverImage"`
	SiteURL string `json:"siteUrl"`
}

type listsResponse struct {
	Data struct {
		MediaListCollection struct {
			Lists []struct {
				Name    string `json:"name"`
				Entries []struct {
					Media    rawMedia `json:"media"`
					ScoreRaw float64  `json:"scoreRaw"`
				} `json:"entries"`
			} `json:"lists"`
		} `json:"MediaListCollection"`
	} `json:"data"`
	Errors []gqlError `json:"errors"`
}

type seasonResponse struct {
	Data struct {
		Page struct {
			Media []rawMedia `json:"media"`
		} `json:"Page"`
	} `json:"data"`
	Errors []gqlError `json:"errors"`
}

// toModel flattens the nested GraphQL shape. A null averageScore becomes 0.
func (r rawMedia) toModel() model.Media {
	m := model.Media{
		Title:      r.Title.Romaji,
		Genres:     append([]string(nil), r.Genres...),
		CoverImage: r.CoverImage.Large,
		SiteURL:    r.SiteURL,
	}
	if r.AverageScore != nil {
		m.AverageScore = *r.AverageScore
	}
	for _, t := range r.Tags {
		m.Tags = append(m.Tags, model.Tag{Name: t.Name, Rank: t.Rank})
	}
	for _, s := range r.Studios.Nodes {
		m.Studios = append(m.Studios, model.Studio{Name: s.Name, IsAnimationStudio: s.IsAnimationStudio})
	}
	for _, e := range r.Staff.Edges {
		m.Staff = append(m.Staff, model.StaffEdge{ID: e.Node.ID, Role: e.Role})
	}
	return m
}
