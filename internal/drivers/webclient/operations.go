package webclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"feditest/internal/driver"
	"feditest/pkg/logging"
)

// QueryWebFinger implements driver.WebFingerQuerier.
//
// Parameters: resource, or account (an account id on the target node);
// optionally server (a role) or base_url to query another node.
func (n *Node) QueryWebFinger(ctx context.Context, p driver.Params) (driver.Result, error) {
	base, domain, err := n.target(ctx, p)
	if err != nil {
		return nil, n.fail(driver.CapWebFingerQuery, err)
	}
	resource, ok := p.String("resource")
	if !ok || resource == "" {
		account, err := p.RequireString("account")
		if err != nil {
			return nil, n.fail(driver.CapWebFingerQuery, fmt.Errorf("either resource or account is required"))
		}
		resource = fmt.Sprintf("acct:%s@%s", account, domain)
	}

	query := base + "/.well-known/webfinger?resource=" + url.QueryEscape(resource)
	logging.Debug("Driver", "Role %s queries WebFinger for %s", n.role, resource)
	resp, err := n.get(ctx, query, ContentTypeJRD)
	if err != nil {
		return nil, n.fail(driver.CapWebFingerQuery, err)
	}

	res := driver.Result(resp.result())
	res["resource"] = resource
	if jrd := resp.JSON(); jrd != nil {
		res["subject"] = jrd["subject"]
		res["self"] = selfLink(jrd)
	}
	return res, nil
}

func selfLink(jrd map[string]interface{}) string {
	for _, link := range objects(jrd["links"]) {
		rel, _ := link["rel"].(string)
		typ, _ := link["type"].(string)
		if rel == "self" && (typ == ContentTypeActivity || typ == "") {
			href, _ := link["href"].(string)
			return href
		}
	}
	return ""
}

// HTTPGet implements driver.HTTPGetter. Parameters: url, optional accept.
func (n *Node) HTTPGet(ctx context.Context, p driver.Params) (driver.Result, error) {
	target, err := p.RequireString("url")
	if err != nil {
		return nil, n.fail(driver.CapHTTPGet, err)
	}
	accept, _ := p.String("accept")
	resp, err := n.get(ctx, target, accept)
	if err != nil {
		return nil, n.fail(driver.CapHTTPGet, err)
	}
	return resp.result(), nil
}

// FetchActor implements driver.ActorFetcher.
//
// Parameters: url, or account (resolved through WebFinger on the target
// node).
func (n *Node) FetchActor(ctx context.Context, p driver.Params) (driver.Result, error) {
	actorURL, ok := p.String("url")
	if !ok || actorURL == "" {
		wf, err := n.QueryWebFinger(ctx, p)
		if err != nil {
			return nil, n.fail(driver.CapActorFetch, err)
		}
		actorURL, _ = wf["self"].(string)
		if actorURL == "" {
			return nil, n.fail(driver.CapActorFetch, fmt.Errorf("WebFinger for %v returned status %v and no self link", wf["resource"], wf["status"]))
		}
	}

	resp, err := n.get(ctx, actorURL, ContentTypeActivity)
	if err != nil {
		return nil, n.fail(driver.CapActorFetch, err)
	}
	res := driver.Result(resp.result())
	res["url"] = actorURL
	if actor := resp.JSON(); actor != nil {
		for _, field := range []string{"id", "type", "inbox", "outbox", "preferredUsername"} {
			if v, ok := actor[field]; ok {
				res[field] = v
			}
		}
	}
	return res, nil
}

// DeliverActivity implements driver.ActivityDeliverer.
//
// Parameters: inbox (URL), and either activity (an object posted as is) or
// content (wrapped into a Create of a Note); optional actor. An activity
// without id gets a urn:uuid one.
func (n *Node) DeliverActivity(ctx context.Context, p driver.Params) (driver.Result, error) {
	inbox, err := p.RequireString("inbox")
	if err != nil {
		return nil, n.fail(driver.CapActivityDeliver, err)
	}

	activity, ok := p.Map("activity")
	if ok {
		copied := make(map[string]interface{}, len(activity)+1)
		for k, v := range activity {
			copied[k] = v
		}
		activity = copied
	} else {
		content, err := p.RequireString("content")
		if err != nil {
			return nil, n.fail(driver.CapActivityDeliver, fmt.Errorf("either activity or content is required"))
		}
		actor, _ := p.String("actor")
		activity = map[string]interface{}{
			"@context":  "https://www.w3.org/ns/activitystreams",
			"type":      "Create",
			"published": time.Now().UTC().Format(time.RFC3339),
			"object": map[string]interface{}{
				"type":    "Note",
				"content": content,
			},
		}
		if actor != "" {
			activity["actor"] = actor
			activity["object"].(map[string]interface{})["attributedTo"] = actor
		}
	}
	if id, _ := activity["id"].(string); id == "" {
		activity["id"] = "urn:uuid:" + uuid.NewString()
	}

	logging.Debug("Driver", "Role %s delivers %v %v to %s", n.role, activity["type"], activity["id"], inbox)
	resp, err := n.postJSON(ctx, inbox, ContentTypeActivity, activity)
	if err != nil {
		return nil, n.fail(driver.CapActivityDeliver, err)
	}
	res := driver.Result(resp.result())
	res["id"] = activity["id"]
	return res, nil
}

// FetchTimeline implements driver.TimelineFetcher.
//
// Parameters: url of a collection, or actor (URL) plus collection (a field
// of the actor document, default outbox). A collection that pages its items
// is followed to its first page.
func (n *Node) FetchTimeline(ctx context.Context, p driver.Params) (driver.Result, error) {
	collectionURL, ok := p.String("url")
	if !ok || collectionURL == "" {
		actorURL, err := p.RequireString("actor")
		if err != nil {
			return nil, n.fail(driver.CapTimelineFetch, fmt.Errorf("either url or actor is required"))
		}
		field, ok := p.String("collection")
		if !ok || field == "" {
			field = "outbox"
		}
		resp, err := n.get(ctx, actorURL, ContentTypeActivity)
		if err != nil {
			return nil, n.fail(driver.CapTimelineFetch, err)
		}
		collectionURL, _ = resp.JSON()[field].(string)
		if collectionURL == "" {
			return nil, n.fail(driver.CapTimelineFetch, fmt.Errorf("actor %s has no %s collection", actorURL, field))
		}
	}

	resp, err := n.get(ctx, collectionURL, ContentTypeActivity)
	if err != nil {
		return nil, n.fail(driver.CapTimelineFetch, err)
	}
	res := driver.Result(resp.result())
	res["url"] = collectionURL
	collection := resp.JSON()
	if resp.Status != http.StatusOK || collection == nil {
		return res, nil
	}
	res["total_items"] = collection["totalItems"]

	items, found := collectionItems(collection)
	if !found {
		switch first := collection["first"].(type) {
		case string:
			page, err := n.get(ctx, first, ContentTypeActivity)
			if err != nil {
				return nil, n.fail(driver.CapTimelineFetch, err)
			}
			items, _ = collectionItems(page.JSON())
		case map[string]interface{}:
			items, _ = collectionItems(first)
		}
	}
	if items == nil {
		items = []interface{}{}
	}
	res["items"] = items
	return res, nil
}

func collectionItems(c map[string]interface{}) ([]interface{}, bool) {
	for _, field := range []string{"orderedItems", "items"} {
		if items, ok := c[field].([]interface{}); ok {
			return items, true
		}
	}
	return nil, false
}
