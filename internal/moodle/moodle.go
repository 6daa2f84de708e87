// Package moodle is a thin client for the Moodle web-service REST API,
// covering the two calls this system needs: the course catalog and a
// course's file listing.
package moodle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pavelanni/mockexam/internal/model"
	"github.com/pavelanni/mockexam/internal/reference"
)

const lookupTimeout = 10 * time.Second

// Client talks to one Moodle instance.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a Client. The base URL may omit the scheme; https is assumed.
func New(baseURL, token string) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL != "" && !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "https://" + baseURL
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: lookupTimeout},
	}
}

// Configured reports whether the client has an endpoint and a token.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.token != ""
}

type apiError struct {
	Exception string `json:"exception"`
	Message   string `json:"message"`
}

func (c *Client) call(ctx context.Context, wsfunction string, extra url.Values, out any) error {
	params := url.Values{
		"wstoken":            {c.token},
		"wsfunction":         {wsfunction},
		"moodlewsrestformat": {"json"},
	}
	for k, vs := range extra {
		params[k] = vs
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/webservice/rest/server.php?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", wsfunction, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read body: %w", wsfunction, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: status %d", wsfunction, resp.StatusCode)
	}

	// Moodle reports errors as a JSON object even when the call expects a list.
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Exception != "" {
		return fmt.Errorf("%s: %s", wsfunction, apiErr.Message)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: parse response: %w", wsfunction, err)
	}
	return nil
}

type moodleCourse struct {
	ID        int64  `json:"id"`
	FullName  string `json:"fullname"`
	ShortName string `json:"shortname"`
	Visible   int    `json:"visible"`
}

// ListCourses fetches the course catalog, skipping the site course (id 1).
func (c *Client) ListCourses(ctx context.Context) ([]model.Course, error) {
	var raw []moodleCourse
	if err := c.call(ctx, "core_course_get_courses", nil, &raw); err != nil {
		return nil, err
	}
	var courses []model.Course
	for _, mc := range raw {
		if mc.ID <= 1 {
			continue
		}
		name := mc.FullName
		if name == "" {
			name = mc.ShortName
		}
		code := mc.ShortName
		if code == "" {
			code = strconv.FormatInt(mc.ID, 10)
		}
		courses = append(courses, model.Course{
			Code:     code,
			Name:     name,
			MoodleID: mc.ID,
			URL:      fmt.Sprintf("%s/course/view.php?id=%d", c.baseURL, mc.ID),
		})
	}
	return courses, nil
}

type courseSection struct {
	Modules []struct {
		Contents []struct {
			Filename string   `json:"filename"`
			FileURL  string   `json:"fileurl"`
			Tags     []string `json:"tags"`
		} `json:"contents"`
	} `json:"modules"`
}

// ListCourseFiles flattens a course's section/module/content tree into a
// file list. It implements reference.ContentSource.
func (c *Client) ListCourseFiles(ctx context.Context, courseID int64) ([]reference.CourseFile, error) {
	var sections []courseSection
	extra := url.Values{"courseid": {strconv.FormatInt(courseID, 10)}}
	if err := c.call(ctx, "core_course_get_contents", extra, &sections); err != nil {
		return nil, err
	}
	var files []reference.CourseFile
	for _, sec := range sections {
		for _, mod := range sec.Modules {
			for _, content := range mod.Contents {
				if content.Filename == "" || content.FileURL == "" {
					continue
				}
				files = append(files, reference.CourseFile{
					Filename:    content.Filename,
					DownloadURL: content.FileURL,
					Tags:        content.Tags,
				})
			}
		}
	}
	return files, nil
}

// Download fetches a file URL, appending the web-service token the way
// Moodle's pluginfile endpoint expects.
func (c *Client) Download(ctx context.Context, fileURL string) ([]byte, error) {
	sep := "?"
	if strings.Contains(fileURL, "?") {
		sep = "&"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL+sep+"token="+url.QueryEscape(c.token), nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
