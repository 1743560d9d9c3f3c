package room

import (
	"crypto/rand"
	"math/big"
	"strings"
)

var moods = []string{
	"amber", "brisk", "calm", "dusky", "eager", "fuzzy", "gentle", "hushed", "idle", "jolly",
	"keen", "lucid", "mellow", "nimble", "opal", "plucky", "quiet", "rosy", "sunny", "tidy",
}

var creatures = []string{
	"otter", "heron", "lynx", "marmot", "newt", "ocelot", "puffin", "quail", "raven", "stoat",
	"tapir", "urchin", "vole", "walrus", "yak", "zebu", "badger", "civet", "dingo", "egret",
}

var places = []string{
	"harbor", "meadow", "canyon", "delta", "fjord", "grove", "hollow", "island", "jetty", "kiln",
	"lagoon", "mesa", "nook", "orchard", "prairie", "quay", "ridge", "summit", "tundra", "valley",
}

var things = []string{
	"lantern", "compass", "kettle", "ribbon", "teacup", "anchor", "button", "candle", "feather", "goblet",
	"hammock", "inkpot", "jigsaw", "kite", "locket", "mitten", "needle", "oar", "pebble", "quill",
}

// GenerateID returns a memorable room id of the form mood-creature-place-thing.
func GenerateID() string {
	lists := [][]string{moods, creatures, places, things}

	words := make([]string, len(lists))
	for i, list := range lists {
		words[i] = list[randomIndex(len(list))]
	}
	return strings.Join(words, "-")
}

// randomIndex returns a cryptographically secure random index below n.
func randomIndex(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("room: crypto/rand failed: " + err.Error())
	}
	return int(v.Int64())
}
