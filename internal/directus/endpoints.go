package directus

import (
	"context"
	"encoding/base64"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// do logs in, then sends the request with the resulting token attached.
func (c *Client) do(ctx context.Context, method, uri string, payload any, params url.Values) (*Response, error) {
	tok, err := c.Login(ctx)
	if err != nil {
		return nil, err
	}
	return c.transport.Do(ctx, Request{
		Method:  method,
		URL:     uri,
		Token:   tok,
		Query:   params,
		Payload: payload,
	})
}

func itemPath(collection string, id int) string {
	return "/items/" + url.PathEscape(collection) + "/" + strconv.Itoa(id)
}

// Items lists the items of a collection.
func (c *Client) Items(ctx context.Context, collection string, params url.Values) (*Response, error) {
	return c.do(ctx, http.MethodGet, c.uri("/items/"+url.PathEscape(collection)), nil, params)
}

// Item fetches a single item.
func (c *Client) Item(ctx context.Context, collection string, id int, params url.Values) (*Response, error) {
	return c.do(ctx, http.MethodGet, c.uri(itemPath(collection, id)), nil, params)
}

// CreateItem creates an item in a collection.
func (c *Client) CreateItem(ctx context.Context, collection string, payload map[string]any, params url.Values) (*Response, error) {
	return c.do(ctx, http.MethodPost, c.uri("/items/"+url.PathEscape(collection)), nonNil(payload), params)
}

// UpdateItem patches an item.
func (c *Client) UpdateItem(ctx context.Context, collection string, id int, payload map[string]any, params url.Values) (*Response, error) {
	return c.do(ctx, http.MethodPatch, c.uri(itemPath(collection, id)), nonNil(payload), params)
}

// DeleteItem deletes an item.
func (c *Client) DeleteItem(ctx context.Context, collection string, id int) (*Response, error) {
	return c.do(ctx, http.MethodDelete, c.uri(itemPath(collection, id)), nil, nil)
}

// ItemRevisions lists the revisions of an item.
func (c *Client) ItemRevisions(ctx context.Context, collection string, id int, params url.Values) (*Response, error) {
	return c.do(ctx, http.MethodGet, c.uri(itemPath(collection, id)+"/revisions"), nil, params)
}

// ItemRevision fetches the revision at offset.
func (c *Client) ItemRevision(ctx context.Context, collection string, id, offset int, params url.Values) (*Response, error) {
	return c.do(ctx, http.MethodGet, c.uri(itemPath(collection, id)+"/revisions/"+strconv.Itoa(offset)), nil, params)
}

// RevertItem reverts an item to a revision.
func (c *Client) RevertItem(ctx context.Context, collection string, id, revision int, params url.Values) (*Response, error) {
	return c.do(ctx, http.MethodPatch, c.uri(itemPath(collection, id)+"/revert/"+strconv.Itoa(revision)), map[string]any{}, params)
}

// Files lists files.
func (c *Client) Files(ctx context.Context, params url.Values) (*Response, error) {
	return c.do(ctx, http.MethodGet, c.uri("/files"), nil, params)
}

// File fetches a single file record.
func (c *Client) File(ctx context.Context, id int, params url.Values) (*Response, error) {
	return c.do(ctx, http.MethodGet, c.uri("/files/"+strconv.Itoa(id)), nil, params)
}

// CreateFile uploads a file. file is either a local path, sent base64 encoded,
// or an http(s) URL the server imports. filename_disk and filename_download
// default to the file's base name.
func (c *Client) CreateFile(ctx context.Context, file string, fields map[string]any) (*Response, error) {
	payload, err := filePayload(file, fields, true)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPost, c.uri("/files"), payload, nil)
}

// UpdateFile patches a file record. When file is non-empty its contents are
// replaced as in CreateFile.
func (c *Client) UpdateFile(ctx context.Context, id int, file string, fields map[string]any) (*Response, error) {
	payload := nonNil(fields)
	if file != "" {
		var err error
		if payload, err = filePayload(file, fields, false); err != nil {
			return nil, err
		}
	}
	return c.do(ctx, http.MethodPatch, c.uri("/files/"+strconv.Itoa(id)), payload, nil)
}

// DeleteFile deletes a file.
func (c *Client) DeleteFile(ctx context.Context, id int) (*Response, error) {
	return c.do(ctx, http.MethodDelete, c.uri("/files/"+strconv.Itoa(id)), nil, nil)
}

// FileRevisions lists the revisions of a file.
func (c *Client) FileRevisions(ctx context.Context, id int, params url.Values) (*Response, error) {
	return c.do(ctx, http.MethodGet, c.uri("/files/"+strconv.Itoa(id)+"/revisions"), nil, params)
}

// FileRevision fetches the file revision at offset.
func (c *Client) FileRevision(ctx context.Context, id, offset int, params url.Values) (*Response, error) {
	return c.do(ctx, http.MethodGet, c.uri("/files/"+strconv.Itoa(id)+"/revisions/"+strconv.Itoa(offset)), nil, params)
}

// Activities lists activity records.
func (c *Client) Activities(ctx context.Context, params url.Values) (*Response, error) {
	return c.do(ctx, http.MethodGet, c.uri("/activity"), nil, params)
}

// Activity fetches a single activity record.
func (c *Client) Activity(ctx context.Context, id int, params url.Values) (*Response, error) {
	return c.do(ctx, http.MethodGet, c.uri("/activity/"+strconv.Itoa(id)), nil, params)
}

// Collections lists collections.
func (c *Client) Collections(ctx context.Context, params url.Values) (*Response, error) {
	return c.do(ctx, http.MethodGet, c.uri("/collections"), nil, params)
}

// Collection fetches a collection definition.
func (c *Client) Collection(ctx context.Context, collection string, params url.Values) (*Response, error) {
	return c.do(ctx, http.MethodGet, c.uri("/collections/"+url.PathEscape(collection)), nil, params)
}

// Projects lists the projects configured on the server. Not project-scoped.
func (c *Client) Projects(ctx context.Context) (*Response, error) {
	return c.do(ctx, http.MethodGet, c.settings.URI+"/server/projects", nil, nil)
}

// Users lists users.
func (c *Client) Users(ctx context.Context, params url.Values) (*Response, error) {
	return c.do(ctx, http.MethodGet, c.uri("/users"), nil, params)
}

// User fetches a user; id 0 means the authenticated user.
func (c *Client) User(ctx context.Context, id int, params url.Values) (*Response, error) {
	ref := "me"
	if id != 0 {
		ref = strconv.Itoa(id)
	}
	return c.do(ctx, http.MethodGet, c.uri("/users/"+ref), nil, params)
}

func nonNil(payload map[string]any) map[string]any {
	if payload == nil {
		return map[string]any{}
	}
	return payload
}

// filePayload resolves file into the data member of an upload payload.
// fields is copied, never modified.
func filePayload(file string, fields map[string]any, isNew bool) (map[string]any, error) {
	payload := maps.Clone(nonNil(fields))

	var name string
	if info, err := os.Stat(file); err == nil && info.Mode().IsRegular() {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, &ClientError{Op: "read file", Err: err}
		}
		name = filepath.Base(file)
		payload["data"] = base64.StdEncoding.EncodeToString(data)
	} else if u, err := url.Parse(file); err == nil && strings.HasPrefix(strings.ToLower(u.Scheme), "http") && u.Path != "" {
		name = path.Base(u.Path)
		payload["data"] = file
	} else {
		return nil, &ClientError{Op: "resolve file", Err: fmt.Errorf("unable to resolve file: %s", file)}
	}

	if isNew {
		if _, ok := payload["filename_disk"]; !ok {
			payload["filename_disk"] = name
		}
		if _, ok := payload["filename_download"]; !ok {
			payload["filename_download"] = name
		}
	}

	return payload, nil
}
