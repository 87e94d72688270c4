package common

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeRepoURL canonicalizes a repository URL for identity comparison:
// scheme and host are lowercased, a trailing slash and a trailing ".git"
// suffix are removed. Two submissions that normalize to the same string
// refer to the same repository.
func NormalizeRepoURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("repository URL is empty")
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid repository URL %q: %w", trimmed, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("repository URL must use http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("repository URL %q has no host", trimmed)
	}

	path := strings.TrimSuffix(parsed.Path, "/")
	path = strings.TrimSuffix(path, ".git")
	if path == "" || path == "/" {
		return "", fmt.Errorf("repository URL %q has no repository path", trimmed)
	}

	return fmt.Sprintf("%s://%s%s", scheme, strings.ToLower(parsed.Host), path), nil
}

// SplitOwnerRepo extracts the owner and repository name from a normalized
// repository URL. Hosts with deeper paths (e.g. GitLab subgroups) use the
// first and last segments.
func SplitOwnerRepo(normalized string) (owner, repo string, err error) {
	parsed, err := url.Parse(normalized)
	if err != nil {
		return "", "", fmt.Errorf("invalid repository URL %q: %w", normalized, err)
	}

	segments := []string{}
	for _, s := range strings.Split(parsed.Path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	if len(segments) < 2 {
		return "", "", fmt.Errorf("repository URL %q does not contain owner/name", normalized)
	}

	return segments[0], segments[len(segments)-1], nil
}

// InjectCredential embeds an access token into a clone URL using the
// x-access-token basic-auth convention. The credential never appears in
// logs or stored job records.
func InjectCredential(cloneURL, credential string) (string, error) {
	if credential == "" {
		return cloneURL, nil
	}

	parsed, err := url.Parse(cloneURL)
	if err != nil {
		return "", fmt.Errorf("invalid clone URL: %w", err)
	}

	parsed.User = url.UserPassword("x-access-token", credential)
	return parsed.String(), nil
}
