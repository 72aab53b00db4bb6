package listsync

import (
	"maps"
	"slices"

	"chatshell/conf"
)

// RequestFor builds the sync request for a configured list. File names are
// resolved inside the application directory.
func RequestFor(env conf.Env, name string, src conf.ListSource) Request {
	return Request{
		Name:     name,
		Path:     env.ListPath(src.File),
		URL:      src.URL,
		Header:   maps.Clone(src.Headers),
		Format:   src.Format,
		MergeKey: src.MergeKey,
	}
}

// Requests returns a request for every configured list, ordered by name.
func Requests(env conf.Env, cfg conf.Config) []Request {
	reqs := make([]Request, 0, len(cfg.Lists))
	for _, name := range slices.Sorted(maps.Keys(cfg.Lists)) {
		reqs = append(reqs, RequestFor(env, name, cfg.Lists[name]))
	}
	return reqs
}

// Remote filters reqs down to those with a remote source.
func Remote(reqs []Request) []Request {
	var out []Request
	for _, r := range reqs {
		if r.URL != "" {
			out = append(out, r)
		}
	}
	return out
}
