package main

import (
	"os"
	"regexp"
)

var (
	// <deployment>-<pod-template-hash>-<suffix>
	deploymentPodRe = regexp.MustCompile(`^(.+)-[a-z0-9]{8,10}-[a-z0-9]{5}$`)
	// <statefulset>-<ordinal>
	statefulSetPodRe = regexp.MustCompile(`^(.+)-\d+$`)
)

// parseOwnerName извлекает имя владельца пода (Deployment или StatefulSet)
// из hostname. Если формат не распознан, hostname возвращается как есть.
func parseOwnerName(hostname string) string {
	if m := deploymentPodRe.FindStringSubmatch(hostname); m != nil {
		return m[1]
	}
	if m := statefulSetPodRe.FindStringSubmatch(hostname); m != nil {
		return m[1]
	}
	return hostname
}

// serviceName — имя вершины графа topologymetrics: явное значение
// или имя владельца пода.
func serviceName(configured string) string {
	if configured != "" {
		return configured
	}
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "offline-pages"
	}
	return parseOwnerName(hostname)
}
