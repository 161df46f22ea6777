package testutils

import (
	"errors"
	"fmt"
	"log"
	"os/exec"
	"strings"
)

// docker runs the docker CLI and returns its combined output, trimmed.
func docker(args ...string) (string, error) {
	output, err := exec.Command("docker", args...).CombinedOutput()
	result := strings.TrimSpace(string(output))

	if err != nil {
		const errFmt = "docker %s failed: %s:\n%s"
		return "", fmt.Errorf(errFmt, strings.Join(args, " "), err, result)
	}
	return result, nil
}

// LaunchDockerContainer runs image in the background, publishing
// containerPort at localEndpoint, for contract tests against local emulators
// such as DynamoDB Local.
//
// The returned cleanup function stops and removes the container.
func LaunchDockerContainer(
	service string, localEndpoint BaseEndpoint, containerPort int, image string,
) (cleanup func() error, err error) {
	if _, err = docker("info"); err != nil {
		return nil, errors.New("docker must be running to run this test")
	} else if _, err = docker("pull", image); err != nil {
		return
	}

	portMap := fmt.Sprintf("%s:%d", localEndpoint, containerPort)
	containerId, err := docker("run", "-d", "-p", portMap, image)
	if err != nil {
		return nil, fmt.Errorf("failed to start local %s: %w", service, err)
	}
	const logFmt = "local %s at %s in container: %s"
	log.Printf(logFmt, service, localEndpoint, containerId)

	cleanup = func() error {
		log.Printf("removing %s container: %s", service, containerId)
		if _, err := docker("stop", "-t", "0", containerId); err != nil {
			return err
		}
		_, err := docker("rm", containerId)
		return err
	}
	return
}
