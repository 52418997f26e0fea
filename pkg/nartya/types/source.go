package types

// Provider identifies the video host behind an embed URL
type Provider string

const (
	ProviderSibnet      Provider = "sibnet"
	ProviderVidmoly     Provider = "vidmoly"
	ProviderSendVid     Provider = "sendvid"
	ProviderVudeo       Provider = "vudeo"
	ProviderGoUnlimited Provider = "gounlimited"
	ProviderUnknown     Provider = "unknown"
)

// Listing maps language → source (mirror) name → embed URLs in episode order
type Listing map[string]map[string][]string

// Source describes one mirror of a listing
type Source struct {
	// Name is the mirror name, e.g. "eps1"
	Name string `json:"name"`
	// MainProvider is the host used by most episodes
	MainProvider Provider `json:"mainProvider"`
	// Episodes is the number of episodes
	Episodes int `json:"episodes"`
	// IsMixed is true when several hosts are used
	IsMixed bool `json:"isMixed"`
	// IsSlow is true when the main host is known to be slow
	IsSlow bool `json:"isSlow"`
	// Recommended marks the source to start with
	Recommended bool `json:"recommended"`
}
