package redis

import "fmt"

/*
	MATCH STORAGE:   <ns>:match:<id>   -> JSON snapshot of a concluded match
	                 <ns>:matches      -> ZSet of match ids scored by conclusion time
	BOARD CATALOG:   <ns>:boards       -> Hash of board name to JSON board
*/

func matchKey(namespace, id string) string {
	return fmt.Sprintf("%s:match:%s", namespace, id)
}

func matchIndexKey(namespace string) string {
	return fmt.Sprintf("%s:matches", namespace)
}

func boardsKey(namespace string) string {
	return fmt.Sprintf("%s:boards", namespace)
}
