package web

import (
	"fmt"

	"github.com/picofed/picofed/db"
	"github.com/picofed/picofed/util"
)

func GetWebfinger(database *db.DB, conf *util.AppConfig, user string) (error, string) {

	err, acc := database.ReadUserByUsername(user)
	if err != nil {
		return err, GetWebFingerNotFound()
	}

	username := acc.Username

	return nil, fmt.Sprintf(
		`{
					"subject": "acct:%s@%s",

					"links": [
						{
							"rel": "self",
							"type": "application/activity+json",
							"href": "https://%s/users/%s"
						}
					]
				}`, username, conf.Conf.Domain,
		conf.Conf.Domain, username)
}

func GetWebFingerNotFound() string {
	return `{"detail":"Not Found"}`
}
