package api

import (
	"fmt"
	"math"
)

// Version is reported in every response envelope.
const Version = "2.0.0"

// errOutOfRange signals a start or page parameter outside the result
// set; the handler turns it into a 404.
var errOutOfRange = fmt.Errorf("api: page out of range")

// item wraps a single record in a response envelope.
type item struct {
	APIVersion string `json:"apiVersion"`
	Data       any    `json:"data"`
}

// page is the envelope for one page of a listing.
type page struct {
	APIVersion string   `json:"apiVersion"`
	Data       pageData `json:"data"`
}

type pageData struct {
	ItemsPerPage     int    `json:"itemsPerPage"`
	CurrentItemCount int    `json:"currentItemCount"`
	StartIndex       int    `json:"startIndex"`
	TotalItems       int    `json:"totalItems"`
	PageIndex        int    `json:"pageIndex"`
	TotalPages       int    `json:"totalPages"`
	NextLink         string `json:"nextLink,omitempty"`
	PreviousLink     string `json:"previousLink,omitempty"`
	Items            []any  `json:"items"`
}

// paging carries the request's paging parameters. Start and Page are
// both 1-based; zero means unset.
type paging struct {
	Start    int
	Page     int
	PageSize int
}

// asResponseItem wraps one record.
func asResponseItem(data any) item {
	return item{APIVersion: Version, Data: data}
}

// asResponsePage slices records into one page of the listing rooted at
// link, with next/previous links for the adjacent requests. Start-based
// and page-based addressing are both supported; start wins when both
// are given.
func asResponsePage(records []any, link string, p paging) (page, error) {
	pageSize := p.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}

	total := len(records)
	totalPages := int(math.Ceil(float64(total) / float64(pageSize)))

	var startIndex, pageIndex int
	switch {
	case p.Start > 0:
		startIndex = p.Start
		if startIndex > total || startIndex < 1 {
			return page{}, errOutOfRange
		}
		pageIndex = startIndex/pageSize + 1
	case p.Page > 0:
		pageIndex = p.Page
		if pageIndex > totalPages || pageIndex < 1 {
			return page{}, errOutOfRange
		}
		startIndex = (pageIndex-1)*pageSize + 1
	default:
		startIndex = 1
		pageIndex = 1
	}

	end := startIndex + pageSize - 1
	if end > total {
		end = total
	}
	items := make([]any, 0, pageSize)
	items = append(items, records[startIndex-1:end]...)

	data := pageData{
		ItemsPerPage:     pageSize,
		CurrentItemCount: len(items),
		StartIndex:       startIndex,
		TotalItems:       total,
		PageIndex:        pageIndex,
		TotalPages:       totalPages,
		Items:            items,
	}

	// A start offset that does not fall on a page boundary splits the
	// listing into one more page than the even division suggests.
	if (startIndex-1)%pageSize > 0 {
		data.TotalPages++
	}

	if p.Page > 0 && p.Start == 0 {
		if pageIndex < data.TotalPages {
			data.NextLink = fmt.Sprintf("%s?page=%d&pageSize=%d", link, p.Page+1, pageSize)
		}
		if pageIndex > 1 {
			data.PreviousLink = fmt.Sprintf("%s?page=%d&pageSize=%d", link, p.Page-1, pageSize)
		}
	} else {
		if startIndex+pageSize <= total {
			data.NextLink = fmt.Sprintf("%s?start=%d&pageSize=%d", link, startIndex+pageSize, pageSize)
		}
		if startIndex > 1 {
			prevStart := startIndex - pageSize
			if prevStart < 1 {
				data.PreviousLink = fmt.Sprintf("%s?start=1&pageSize=%d", link, startIndex-1)
			} else {
				data.PreviousLink = fmt.Sprintf("%s?start=%d&pageSize=%d", link, prevStart, pageSize)
			}
		}
	}

	return asPage(data), nil
}

func asPage(data pageData) page {
	return page{APIVersion: Version, Data: data}
}
