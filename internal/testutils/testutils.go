// Package testutils holds the fixtures and helpers shared by the test suites.
package testutils

// TestCatalog declares the users/photos/cameras sets used throughout the tests.
//
// users:   nathan, corey, bob
// photos:  nathan_photo_1, nathan_photo_2 (user nathan), corey_photo_1 (user corey)
// cameras: minolta (nathan), canon (corey)
const TestCatalog = `
sets:
  - name: users
    attributes:
      - name: name
        type: string
      - name: hobby
        type: string
        default: "Bomb construction"
      - name: age
        type: integer
      - name: address
        type: object
      - name: city
        jsonPath: "$.address.city"
    fixtures:
      nathan:
        name: Nathan
        hobby: Yoga
        age: 33
        address:
          city: Boulder
      corey:
        name: Corey
        hobby: Drugs
        age: 28
        address:
          city: San Francisco
      bob:
        name: Bob
        age: 45
  - name: photos
    attributes:
      - name: user_id
        type: string
      - name: camera_id
        type: string
      - name: name
        type: string
    fixtures:
      nathan_photo_1:
        user_id: nathan
        camera_id: minolta
        name: Photo From Nathan
      nathan_photo_2:
        user_id: nathan
        camera_id: minolta
        name: Another Photo From Nathan
      corey_photo_1:
        user_id: corey
        camera_id: canon
        name: Photo From Corey
  - name: cameras
    attributes:
      - name: name
        type: string
    fixtures:
      minolta:
        name: Minolta
      canon:
        name: Canon
`
