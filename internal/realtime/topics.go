package realtime

import "strings"

const sessionTopicPrefix = "session:"

// TopicSession is the channel a session's events are published on.
func TopicSession(id string) string {
	return sessionTopicPrefix + id
}

// SessionFromTopic returns the session id of a session topic.
func SessionFromTopic(topic string) (string, bool) {
	id, ok := strings.CutPrefix(topic, sessionTopicPrefix)
	return id, ok && id != ""
}
