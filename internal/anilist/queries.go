package anilist

const mediaFields = `
	title { romaji }
	tags { name rank }
	genres
	averageScore
	studios(isMain: true) { nodes { name isAnimationStudio } }
	staff(sort: [RELEVANCE]) { edges { role node { id } } }
	coverImage { large }
	siteUrl
`

const listsQuery = `
query($name: String!) {
	MediaListCollection(userName: $name, type: ANIME) {
		lists {
			name
			entries { ...mediaListEntry }
		}
	}
}

fragment mediaListEntry on MediaList {
	media {` + mediaFields + `}
	scoreRaw: score(format: POINT_100)
}
`

const seasonQuery = `
query($season: MediaSeason, $year: Int, $page: Int) {
	Page(page: $page) {
		media(season: $season, seasonYear: $year, format: TV, sort: [SCORE_DESC]) {` + mediaFields + `}
	}
}
`
