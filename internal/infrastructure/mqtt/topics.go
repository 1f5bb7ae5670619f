package mqtt

import "strings"

// Topic prefixes.
const (
	TopicPrefix       = "notify"
	TopicPrefixState  = TopicPrefix + "/state"
	TopicPrefixSystem = TopicPrefix + "/system"
)

// Topics provides builders for Gray Logic Notify MQTT topics.
type Topics struct{}

// State returns the topic carrying state for one entity.
//
// Example: notify/state/alice
func (Topics) State(entityID string) string {
	return TopicPrefixState + "/" + entityID
}

// AllStates returns the wildcard matching every entity state topic.
func (Topics) AllStates() string {
	return TopicPrefixState + "/+"
}

// SystemStatus returns the retained online/offline status topic.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// EntityFromTopic returns the last level of topic, which names the entity
// on state topics. It reports false for topics without a usable last level.
func EntityFromTopic(topic string) (string, bool) {
	i := strings.LastIndexByte(topic, '/')
	if i < 0 || i == len(topic)-1 {
		return "", false
	}
	id := topic[i+1:]
	if id == "+" || id == "#" {
		return "", false
	}
	return id, true
}
